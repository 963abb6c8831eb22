package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holdersav20001/enterprise-tool-router/pkg/errs"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	return New(Config{})
}

func TestValidator_AcceptsSimpleSelect(t *testing.T) {
	v := newValidator(t)

	out, err := v.Validate("SELECT region, revenue FROM sales_fact")
	require.NoError(t, err)
	assert.Equal(t, "SELECT region, revenue FROM sales_fact LIMIT 200", out)
}

func TestValidator_RejectsNonSelect(t *testing.T) {
	v := newValidator(t)

	cases := []string{
		"DROP TABLE audit_log",
		"INSERT INTO sales_fact VALUES (1)",
		"UPDATE sales_fact SET revenue = 0",
		"  WITH t AS (SELECT 1) SELECT * FROM t",
	}
	for _, sql := range cases {
		_, err := v.Validate(sql)
		require.Error(t, err, sql)
		assert.True(t, errs.IsCategory(err, errs.CategoryValidation))
	}
}

func TestValidator_ShapeGateSingleChar(t *testing.T) {
	v := newValidator(t)

	_, err := v.Validate("S")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SELECT")
}

func TestValidator_RejectsSemicolons(t *testing.T) {
	v := newValidator(t)

	_, err := v.Validate("SELECT * FROM sales_fact; DROP TABLE audit_log LIMIT 10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "semicolon")
}

func TestValidator_BlockedKeywordAsWholeWord(t *testing.T) {
	v := newValidator(t)

	_, err := v.Validate("SELECT * FROM sales_fact WHERE note = delete_marker DROP")
	require.Error(t, err)

	// Substrings of identifiers must not trigger the blocklist.
	out, err := v.Validate("SELECT dropped_at, updates FROM job_runs LIMIT 5")
	require.NoError(t, err)
	assert.Equal(t, "SELECT dropped_at, updates FROM job_runs LIMIT 5", out)
}

func TestValidator_AppendsLimitWhenAbsent(t *testing.T) {
	v := New(Config{DefaultLimit: 50})

	out, err := v.Validate("select job_name from job_runs")
	require.NoError(t, err)
	assert.Equal(t, "select job_name from job_runs LIMIT 50", out)
}

func TestValidator_KeepsExistingLimit(t *testing.T) {
	v := newValidator(t)

	out, err := v.Validate("SELECT * FROM sales_fact LIMIT 10")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM sales_fact LIMIT 10", out)
}

func TestValidator_LimitZeroIsPresent(t *testing.T) {
	v := newValidator(t)

	out, err := v.Validate("SELECT * FROM sales_fact LIMIT 0")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM sales_fact LIMIT 0", out)
}

func TestValidator_Idempotent(t *testing.T) {
	v := newValidator(t)

	once, err := v.Validate("SELECT region FROM sales_fact")
	require.NoError(t, err)

	twice, err := v.Validate(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestValidator_TableAllowlist(t *testing.T) {
	v := newValidator(t)

	_, err := v.Validate("SELECT * FROM users LIMIT 10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allowlist")
}

func TestValidator_TwoFromClausesOneUnknown(t *testing.T) {
	v := newValidator(t)

	_, err := v.Validate(
		"SELECT a.region FROM sales_fact a WHERE a.id IN (SELECT user_id FROM users) LIMIT 5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users")
}

func TestValidator_JoinTargetsChecked(t *testing.T) {
	v := newValidator(t)

	out, err := v.Validate(
		"SELECT s.region, j.status FROM sales_fact s JOIN job_runs j ON s.id = j.id LIMIT 10")
	require.NoError(t, err)
	assert.Contains(t, out, "JOIN job_runs")

	_, err = v.Validate("SELECT * FROM sales_fact JOIN secrets ON true LIMIT 1")
	require.Error(t, err)
}

func TestValidator_CustomAllowlist(t *testing.T) {
	v := New(Config{AllowedTables: []string{"metrics"}})

	_, err := v.Validate("SELECT * FROM sales_fact LIMIT 5")
	require.Error(t, err)

	out, err := v.Validate("SELECT * FROM metrics LIMIT 5")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM metrics LIMIT 5", out)
}
