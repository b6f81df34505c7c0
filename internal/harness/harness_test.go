package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRunWithGolden_Fixtures(t *testing.T) {
	for _, name := range []string{
		"absent_store",
		"round_trip",
		"cookie_line",
		"close_before_reply",
		"owner_destroyed_while_queued",
		"guarded_close_delivers_defaults",
	} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadFixture(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_ConcurrentSets(t *testing.T) {
	result, err := Run(loadFixture(t, "concurrent_sets"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, result.Trace, 101)
	assert.Equal(t, int64(101), result.StoreCalls)

	for i, e := range result.Trace[:100] {
		assert.Equal(t, true, e.Result["ok"], "event %d", i)
	}
}

func TestRun_IsDeterministic(t *testing.T) {
	s := loadFixture(t, "round_trip")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := MarshalCanonical(first.Snapshot(s.Name))
	require.NoError(t, err)
	b, err := MarshalCanonical(second.Snapshot(s.Name))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_DeleteBetween(t *testing.T) {
	s := &Scenario{
		Name:        "delete_between",
		Description: "only cookies created inside the range are deleted",
		Variant:     VariantWeak,
		Store:       StoreMemory,
		Steps: []Step{
			{Op: OpSet, Label: "old", URL: "https://example.com/", Name: "old", Value: "1", Creation: "2025-06-01T00:00:00Z"},
			{Op: OpSet, Label: "new", URL: "https://example.com/", Name: "new", Value: "1", Creation: "2026-06-01T00:00:00Z"},
			{Op: OpDeleteBetween, Label: "d1", Begin: "2026-01-01T00:00:00Z"},
			{Op: OpGetList, Label: "g1", URL: "https://example.com/"},
		},
		Assertions: []Assertion{
			{Type: AssertResult, Label: "d1", Expect: map[string]any{"deleted": 1}},
			{Type: AssertCookieCount, Label: "g1", Count: 1},
			{Type: AssertTraceOrder, Labels: []string{"old", "new", "d1", "g1"}},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	g1, ok := result.Event("g1")
	require.True(t, ok)
	cookies := g1.Result["cookies"].([]any)
	assert.Equal(t, "old", cookies[0].(map[string]any)["name"])
}

func TestRun_HTTPOnlyFilteredFromLine(t *testing.T) {
	s := &Scenario{
		Name:        "httponly",
		Description: "httponly cookies need include_httponly",
		Variant:     VariantGuarded,
		Store:       StoreMemory,
		Steps: []Step{
			{Op: OpSet, Label: "s1", URL: "https://example.com/", Name: "h", Value: "1", HTTPOnly: true},
			{Op: OpGetLine, Label: "plain", URL: "https://example.com/"},
			{Op: OpGetLine, Label: "all", URL: "https://example.com/", HTTPOnly: true},
		},
		Assertions: []Assertion{
			{Type: AssertResult, Label: "plain", Expect: map[string]any{"line": ""}},
			{Type: AssertResult, Label: "all", Expect: map[string]any{"line": "h=1"}},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	s := &Scenario{
		Name:        "failing",
		Description: "every assertion is wrong",
		Variant:     VariantWeak,
		Store:       StoreAbsent,
		Steps:       []Step{{Op: OpFlush, Label: "f1"}},
		Assertions: []Assertion{
			{Type: AssertNotDelivered, Label: "f1"},
			{Type: AssertPending, Count: 3},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "never delivered")
	assert.Contains(t, result.Errors[1], "3 pending requests")
}

func TestRun_InvalidStepFailsRun(t *testing.T) {
	s := &Scenario{
		Name:        "bad_url",
		Description: "unparseable url",
		Variant:     VariantWeak,
		Store:       StoreMemory,
		Steps:       []Step{{Op: OpGetLine, Label: "l1", URL: "://nope"}},
	}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0 (get_line)")
}
