package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Deleting a program must take its courses, their enrollments and the
// recorded grades with it. The chain lives in the schema, so the
// migration text is the contract worth pinning down.
func TestInitMigrationDeclaresCascadeChain(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "migrations", "0001_init.sql"))
	require.NoError(t, err)
	schema := string(raw)

	cascades := []string{
		"program_id UUID         NOT NULL REFERENCES programs (id) ON DELETE CASCADE",
		"teacher_id UUID         NOT NULL REFERENCES users (id) ON DELETE CASCADE",
		"student_id UUID        NOT NULL REFERENCES users (id) ON DELETE CASCADE",
		"course_id  UUID        NOT NULL REFERENCES courses (id) ON DELETE CASCADE",
		"enrollment_id UUID             NOT NULL REFERENCES enrollments (id) ON DELETE CASCADE",
	}
	for _, clause := range cascades {
		assert.Contains(t, schema, clause)
	}

	// Audit history must survive user deletion.
	assert.Contains(t, schema, "REFERENCES users (id) ON DELETE SET NULL")
}
