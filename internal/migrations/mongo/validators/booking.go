package validators

import (
	"studyreg/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
)

var integer = bson.A{"int", "long"}

// BookingValidator mirrors model.Booking. Bookings are append-only, so the
// schema is strict about the fields the ledger and export read.
var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"registered_at",
			"first_name",
			"last_name",
			"email",
			"age",
			"level",
			"major",
			"collector_id",
			"date",
			"time",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"registered_at": bson.M{
				"bsonType": "date",
			},

			"first_name": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},

			"last_name": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},

			"email": bson.M{
				"bsonType": "string",
				"pattern":  `^[^@\s]+@[^@\s]+$`,
			},

			"age": bson.M{
				"bsonType": integer,
				"minimum":  18,
				"maximum":  30,
			},

			"level": bson.M{
				"bsonType": "string",
				"enum":     model.AcademicLevels,
			},

			"major": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"phone": bson.M{
				"bsonType": "string",
			},

			"collector_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"date": bson.M{
				"bsonType": "string",
				"pattern":  `^\d{4}-\d{2}-\d{2}$`,
			},

			"time": bson.M{
				"bsonType": "string",
				"enum":     model.DayParts,
			},
		},
	},
}
