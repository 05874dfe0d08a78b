package policyconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/returns-service/internal/domain"
)

const jsonPolicy = `{
	"name": "standard",
	"currency": "usd",
	"returnWindow": {"type": "limited", "days": [30], "calculationFrom": "delivery_date"},
	"refunds": {"enabled": true, "methods": {"originalPayment": true}},
	"fees": {"restocking": {"enabled": true, "percent": 15}},
	"returnMethods": ["prepaid_label"]
}`

const yamlPolicy = `
name: holiday
currency: EUR
returnWindow:
  type: limited
  days: [60]
exchanges:
  enabled: true
automation:
  autoApproveEnabled: true
  autoApproveThreshold: 75.5
`

func newDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := NewDecoder()
	require.NoError(t, err)
	return d
}

func TestDecode_JSON(t *testing.T) {
	cfg, result := newDecoder(t).Decode([]byte(jsonPolicy))

	require.True(t, result.Valid, "%v", result.Errors)
	assert.Equal(t, "standard", cfg.Name)
	assert.Equal(t, []int{30}, cfg.ReturnWindow.Days)
	assert.Equal(t, "delivery_date", cfg.ReturnWindow.CalculationFrom)
	assert.True(t, cfg.Refunds.Methods.OriginalPayment)
	assert.Equal(t, "15", cfg.Fees.Restocking.Percent.String())
	assert.Equal(t, []domain.ReturnMethod{domain.MethodPrepaidLabel}, cfg.ReturnMethods)
}

func TestDecode_YAML(t *testing.T) {
	cfg, result := newDecoder(t).Decode([]byte(yamlPolicy))

	require.True(t, result.Valid, "%v", result.Errors)
	assert.Equal(t, "holiday", cfg.Name)
	assert.Equal(t, "EUR", cfg.Currency)
	assert.True(t, cfg.Exchanges.Enabled)
	assert.Equal(t, "75.5", cfg.Automation.AutoApproveThreshold.String())
}

func TestDecode_AmountsStayExact(t *testing.T) {
	doc := `
name: outlet
currency: USD
returnWindow:
  type: limited
  days: [30]
fees:
  shipping:
    enabled: true
    amount: 4.99
fraud:
  enabled: true
  highValueThreshold: 1000.10
`
	cfg, result := newDecoder(t).Decode([]byte(doc))

	require.True(t, result.Valid, "%v", result.Errors)
	assert.Equal(t, "4.99", cfg.Fees.Shipping.Amount.String())
	assert.Equal(t, "1000.1", cfg.Fraud.HighValueThreshold.String())
}

func TestDecode_SchemaFindings(t *testing.T) {
	tests := []struct {
		name      string
		document  string
		wantField string
	}{
		{
			name:      "missing return window",
			document:  `{"currency": "USD"}`,
			wantField: "",
		},
		{
			name:      "unknown window type",
			document:  `{"currency": "USD", "returnWindow": {"type": "forever"}}`,
			wantField: "returnWindow.type",
		},
		{
			name:      "days are not integers",
			document:  `{"currency": "USD", "returnWindow": {"type": "limited", "days": ["thirty"]}}`,
			wantField: "returnWindow.days.0",
		},
		{
			name:      "unknown risk action",
			document:  `{"currency": "USD", "returnWindow": {"type": "limited", "days": [30]}, "fraud": {"actions": {"high": "shrug"}}}`,
			wantField: "fraud.actions.high",
		},
		{
			name:      "unknown top level key",
			document:  `{"currency": "USD", "returnWindow": {"type": "limited", "days": [30]}, "refundz": {}}`,
			wantField: "",
		},
	}

	d := newDecoder(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, result := d.Decode([]byte(tt.document))

			assert.False(t, result.Valid)
			require.NotEmpty(t, result.Errors)
			fields := make([]string, 0, len(result.Errors))
			for _, issue := range result.Errors {
				assert.NotEmpty(t, issue.Message)
				fields = append(fields, issue.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestDecode_Unparseable(t *testing.T) {
	d := newDecoder(t)

	for name, document := range map[string]string{
		"empty":     "  ",
		"not yaml":  "currency: [USD",
		"not a map": "- just\n- a list\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, result := d.Decode([]byte(document))
			assert.False(t, result.Valid)
			require.Len(t, result.Errors, 1)
			assert.Empty(t, result.Errors[0].Field)
		})
	}
}

func TestLoadFile(t *testing.T) {
	d := newDecoder(t)

	t.Run("bundled default policy", func(t *testing.T) {
		cfg, err := d.LoadFile(filepath.Join("..", "..", "..", "configs", "default-policy.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "USD", cfg.Currency)
		assert.Equal(t, 30, cfg.Window().Days)

		_, err = cfg.Snapshot(0, time.Now())
		assert.NoError(t, err)
	})

	t.Run("rule violations are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("currency: USD\nreturnWindow:\n  type: limited\n"), 0o600))

		_, err := d.LoadFile(path)
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Message, "returnWindow.days")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := d.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
