package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zr-run/zr/internal/zrerrors"
)

func TestParseEmpty(t *testing.T) {
	expr, err := Parse("")
	require.NoError(t, err)
	assert.Nil(t, expr)
	assert.True(t, expr.Eval(Facts{})) // nil receiver is always-true
}

func TestParseAlways(t *testing.T) {
	expr, err := Parse("always")
	require.NoError(t, err)
	assert.True(t, expr.IsAlways())
	assert.True(t, expr.Eval(Facts{Platform: "windows"}))
}

func TestParsePlatformEquality(t *testing.T) {
	expr, err := Parse(`platform == 'linux'`)
	require.NoError(t, err)
	assert.False(t, expr.IsAlways())
	assert.True(t, expr.Eval(Facts{Platform: "linux"}))
	assert.False(t, expr.Eval(Facts{Platform: "darwin"}))
}

func TestParsePlatformInequality(t *testing.T) {
	expr, err := Parse(`platform != "darwin"`)
	require.NoError(t, err)
	assert.True(t, expr.Eval(Facts{Platform: "linux"}))
	assert.False(t, expr.Eval(Facts{Platform: "darwin"}))
}

func TestParseEnvLookup(t *testing.T) {
	expr, err := Parse(`env.CI == 'true'`)
	require.NoError(t, err)
	assert.True(t, expr.Eval(Facts{Env: map[string]string{"CI": "true"}}))
	assert.False(t, expr.Eval(Facts{Env: map[string]string{"CI": "false"}}))
	assert.False(t, expr.Eval(Facts{Env: nil}))
}

func TestParseAndOr(t *testing.T) {
	expr, err := Parse(`platform == 'linux' && env.CI == 'true'`)
	require.NoError(t, err)
	assert.True(t, expr.Eval(Facts{Platform: "linux", Env: map[string]string{"CI": "true"}}))
	assert.False(t, expr.Eval(Facts{Platform: "darwin", Env: map[string]string{"CI": "true"}}))

	expr, err = Parse(`platform == 'darwin' || platform == 'linux'`)
	require.NoError(t, err)
	assert.True(t, expr.Eval(Facts{Platform: "linux"}))
	assert.True(t, expr.Eval(Facts{Platform: "darwin"}))
	assert.False(t, expr.Eval(Facts{Platform: "windows"}))
}

func TestAndBindsTighterThanOr(t *testing.T) {
	// a || b && c  ==  a || (b && c)
	expr, err := Parse(`platform == 'windows' || platform == 'linux' && env.CI == 'true'`)
	require.NoError(t, err)
	assert.True(t, expr.Eval(Facts{Platform: "windows", Env: nil}))
	assert.False(t, expr.Eval(Facts{Platform: "linux", Env: nil}))
	assert.True(t, expr.Eval(Facts{Platform: "linux", Env: map[string]string{"CI": "true"}}))
}

func TestParensOverrideBinding(t *testing.T) {
	expr, err := Parse(`(platform == 'windows' || platform == 'linux') && env.CI == 'true'`)
	require.NoError(t, err)
	assert.False(t, expr.Eval(Facts{Platform: "linux", Env: nil}))
	assert.True(t, expr.Eval(Facts{Platform: "linux", Env: map[string]string{"CI": "true"}}))
}

func TestUnknownIdentifierResolvesFalse(t *testing.T) {
	expr, err := Parse(`foo == 'bar'`)
	require.NoError(t, err)
	assert.False(t, expr.Eval(Facts{}))
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		`platform ==`,
		`platform == 'linux' &&`,
		`(platform == 'linux'`,
		`platform == 'linux')`,
		`platform 'linux'`,
	}
	for _, src := range cases {
		_, err := Parse(src)
		require.Error(t, err, "expected error for %q", src)
		assert.True(t, zrerrors.Is(err, zrerrors.KindInvalidConfig))
	}
}

func TestCurrentPlatformIsKnownTag(t *testing.T) {
	p := CurrentPlatform()
	switch p {
	case "linux", "darwin", "windows", "freebsd", "other":
	default:
		t.Fatalf("unexpected platform tag %q", p)
	}
}
