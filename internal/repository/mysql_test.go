package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestIsDuplicateKey(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1-2-7-1' for key 'uq_ticket_seat'"}

	assert.True(t, isDuplicateKey(dup))
	assert.True(t, isDuplicateKey(fmt.Errorf("insert ticket: %w", dup)), "wrapped driver errors still match")

	assert.False(t, isDuplicateKey(nil))
	assert.False(t, isDuplicateKey(errors.New("duplicate entry")), "message text alone is not enough")
	assert.False(t, isDuplicateKey(&mysql.MySQLError{Number: 1452, Message: "foreign key constraint fails"}))
}
