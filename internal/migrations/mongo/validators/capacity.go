package validators

import "go.mongodb.org/mongo-driver/bson"

// CapacityValidator mirrors the ledger invariants so a write that bypasses the
// service still cannot store a negative or overbooked day.
var CapacityValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"excursion_id",
			"date",
			"max_capacity",
			"current_bookings",
			"is_available",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"excursion_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"date": bson.M{
				"bsonType": "string",
				"pattern":  `^\d{4}-\d{2}-\d{2}$`,
			},

			"max_capacity": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},

			"current_bookings": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},

			"is_available": bson.M{
				"bsonType": "bool",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},

			"applied_releases": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "string",
				},
			},
		},
	},
	"$expr": bson.M{
		"$lte": bson.A{"$current_bookings", "$max_capacity"},
	},
}
