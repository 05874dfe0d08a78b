package mongodb

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SortDescending creates a descending sort
func SortDescending(field string) bson.D {
	return bson.D{{Key: field, Value: -1}}
}

// PageOptions builds find options for one page sorted by field, newest first
func PageOptions(field string, skip, limit int64) *options.FindOptions {
	return options.Find().
		SetSort(SortDescending(field)).
		SetSkip(skip).
		SetLimit(limit)
}

// DateRange builds a range condition, or nil when both bounds are open
func DateRange(from, to interface{}) bson.M {
	cond := bson.M{}
	if from != nil {
		cond["$gte"] = from
	}
	if to != nil {
		cond["$lte"] = to
	}
	if len(cond) == 0 {
		return nil
	}
	return cond
}

// IsDuplicateKey reports a unique index violation
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
