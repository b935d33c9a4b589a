package validators

import "go.mongodb.org/mongo-driver/bson"

// AvailabilityValidator covers one calendar document per collector. The
// dates map is keyed by ISO date, so only its values can be typed here.
var AvailabilityValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "dates"},
		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"dates": bson.M{
				"bsonType": "object",
				"additionalProperties": bson.M{
					"bsonType": "array",
					"items":    bson.M{"bsonType": "string"},
				},
			},
			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var CapacityValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "ceiling", "booked"},
		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"ceiling": bson.M{
				"bsonType": integer,
				"minimum":  0,
			},
			"booked": bson.M{
				"bsonType": integer,
				"minimum":  0,
			},
			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
