package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/models"
)

func apply(t *testing.T, raw string, spec *models.TransformSpec) []map[string]any {
	t.Helper()

	out, err := Apply([]byte(raw), spec)
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(out, &records))
	return records
}

func TestApplyDisabledReturnsRawUnchanged(t *testing.T) {
	raw := []byte(`not even json`)

	for _, spec := range []*models.TransformSpec{
		nil,
		{Enabled: false, Steps: []models.TransformStep{{Type: "pick", Fields: []string{"a"}}}},
		{Enabled: true},
	} {
		out, err := Apply(raw, spec)
		require.NoError(t, err)
		assert.Equal(t, raw, out)
	}
}

func TestApplyPick(t *testing.T) {
	spec := &models.TransformSpec{
		Enabled: true,
		Steps:   []models.TransformStep{{Type: "pick", Fields: []string{"id", "name"}}},
	}

	records := apply(t, `[{"id":1,"name":"a","secret":"x"},{"id":2,"name":"b","secret":"y"}]`, spec)

	require.Len(t, records, 2)
	assert.Equal(t, map[string]any{"id": float64(1), "name": "a"}, records[0])
}

func TestApplyRename(t *testing.T) {
	spec := &models.TransformSpec{
		Enabled: true,
		Steps:   []models.TransformStep{{Type: "rename", Mapping: map[string]string{"name": "label"}}},
	}

	records := apply(t, `[{"id":1,"name":"a"}]`, spec)

	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0]["label"])
	assert.NotContains(t, records[0], "name")
}

func TestApplyFilter(t *testing.T) {
	testCases := []struct {
		name string
		step models.TransformStep
		want int
	}{
		{
			name: "eq",
			step: models.TransformStep{Type: "filter", Field: "status", Op: "eq", Value: "active"},
			want: 2,
		},
		{
			name: "neq",
			step: models.TransformStep{Type: "filter", Field: "status", Op: "neq", Value: "active"},
			want: 1,
		},
		{
			name: "gt",
			step: models.TransformStep{Type: "filter", Field: "score", Op: "gt", Value: float64(10)},
			want: 1,
		},
		{
			name: "contains",
			step: models.TransformStep{Type: "filter", Field: "status", Op: "contains", Value: "act"},
			want: 2,
		},
	}

	raw := `[
		{"status":"active","score":5},
		{"status":"active","score":15},
		{"status":"archived","score":3}
	]`

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			spec := &models.TransformSpec{Enabled: true, Steps: []models.TransformStep{tc.step}}
			records := apply(t, raw, spec)
			assert.Len(t, records, tc.want)
		})
	}
}

func TestApplyFlatten(t *testing.T) {
	spec := &models.TransformSpec{
		Enabled: true,
		Steps:   []models.TransformStep{{Type: "flatten", Field: "meta"}},
	}

	records := apply(t, `[{"id":1,"meta":{"region":"eu","tier":2}}]`, spec)

	require.Len(t, records, 1)
	assert.Equal(t, "eu", records[0]["meta.region"])
	assert.Equal(t, float64(2), records[0]["meta.tier"])
	assert.NotContains(t, records[0], "meta")
}

func TestApplyStepsInOrder(t *testing.T) {
	spec := &models.TransformSpec{
		Enabled: true,
		Steps: []models.TransformStep{
			{Type: "filter", Field: "score", Op: "gt", Value: float64(5)},
			{Type: "pick", Fields: []string{"id"}},
		},
	}

	records := apply(t, `[{"id":1,"score":3},{"id":2,"score":8}]`, spec)

	require.Len(t, records, 1)
	assert.Equal(t, map[string]any{"id": float64(2)}, records[0])
}

func TestApplyStepReferencingRemovedFieldFails(t *testing.T) {
	// The second step references a field the first step removed.
	spec := &models.TransformSpec{
		Enabled: true,
		Steps: []models.TransformStep{
			{Type: "pick", Fields: []string{"id"}},
			{Type: "filter", Field: "status", Op: "eq", Value: "active"},
		},
	}

	_, err := Apply([]byte(`[{"id":1,"status":"active"}]`), spec)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 1, terr.Step)
	assert.Equal(t, "filter", terr.Type)
}

func TestApplyAbsentFieldFails(t *testing.T) {
	testCases := []struct {
		name string
		step models.TransformStep
	}{
		{"pick", models.TransformStep{Type: "pick", Fields: []string{"missing"}}},
		{"rename", models.TransformStep{Type: "rename", Mapping: map[string]string{"missing": "x"}}},
		{"filter", models.TransformStep{Type: "filter", Field: "missing", Op: "eq", Value: 1}},
		{"flatten", models.TransformStep{Type: "flatten", Field: "missing"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			spec := &models.TransformSpec{Enabled: true, Steps: []models.TransformStep{tc.step}}
			_, err := Apply([]byte(`[{"id":1}]`), spec)

			var terr *Error
			require.ErrorAs(t, err, &terr)
		})
	}
}

func TestApplyUnknownStepType(t *testing.T) {
	spec := &models.TransformSpec{Enabled: true, Steps: []models.TransformStep{{Type: "pivot"}}}

	_, err := Apply([]byte(`[]`), spec)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "pivot", terr.Type)
}

func TestApplySingleObjectKeepsShape(t *testing.T) {
	spec := &models.TransformSpec{
		Enabled: true,
		Steps:   []models.TransformStep{{Type: "pick", Fields: []string{"id"}}},
	}

	out, err := Apply([]byte(`{"id":1,"noise":true}`), spec)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(out, &record))
	assert.Equal(t, map[string]any{"id": float64(1)}, record)
}

func TestApplyNonObjectElementsFail(t *testing.T) {
	spec := &models.TransformSpec{Enabled: true, Steps: []models.TransformStep{{Type: "pick", Fields: []string{"id"}}}}

	_, err := Apply([]byte(`[1,2,3]`), spec)

	var terr *Error
	require.ErrorAs(t, err, &terr)
}
