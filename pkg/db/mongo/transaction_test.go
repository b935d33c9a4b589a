package mongo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestUnsupported(t *testing.T) {
	standalone := mongo.CommandError{
		Code:    20,
		Name:    "IllegalOperation",
		Message: "Transaction numbers are only allowed on a replica set member or mongos",
	}
	assert.True(t, unsupported(standalone))
	assert.True(t, unsupported(errors.New("(IllegalOperation) Transaction numbers are only allowed on a replica set member or mongos")))

	assert.False(t, unsupported(mongo.CommandError{Code: 112, Name: "WriteConflict", Message: "write conflict"}))
	assert.False(t, unsupported(errors.New("connection refused")))
}
