package script

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScript_Builder(t *testing.T) {
	sc := New().
		AddStart("a robot dancing", 0).
		AddInteract("robot breakdances", 5000).
		AddEnd(10000)

	require.Len(t, sc.Actions, 3)
	assert.Equal(t, "a robot dancing", sc.Actions[0].Start.Prompt)
	assert.Equal(t, "robot breakdances", sc.Actions[1].Interact.Prompt)
	assert.NotNil(t, sc.Actions[2].End)
	assert.Equal(t, int64(5000), sc.Actions[1].TimestampMs)
}

func TestScript_AddStartImage(t *testing.T) {
	sc := New().AddStartImage("a portrait", "aGVsbG8=", 0)

	require.Len(t, sc.Actions, 1)
	assert.Equal(t, "aGVsbG8=", sc.Actions[0].Start.Image)
}

func TestScript_Validate(t *testing.T) {
	tests := []struct {
		name    string
		script  *Script
		wantErr error
	}{
		{
			name:   "valid start only",
			script: New().AddStart("scene", 0),
		},
		{
			name:   "valid full script",
			script: New().AddStart("scene", 0).AddInteract("change", 3000).AddEnd(6000),
		},
		{
			name:   "equal timestamps allowed",
			script: New().AddStart("scene", 0).AddInteract("change", 0),
		},
		{
			name:    "empty script",
			script:  New(),
			wantErr: ErrEmptyScript,
		},
		{
			name:    "nil script",
			script:  nil,
			wantErr: ErrEmptyScript,
		},
		{
			name:    "first action not start",
			script:  New().AddInteract("change", 0),
			wantErr: ErrMissingStart,
		},
		{
			name:    "two starts",
			script:  New().AddStart("a", 0).AddStart("b", 1000),
			wantErr: ErrMultipleStart,
		},
		{
			name:    "end not last",
			script:  New().AddStart("a", 0).AddEnd(1000).AddInteract("b", 2000),
			wantErr: ErrMisplacedEnd,
		},
		{
			name:    "descending timestamps",
			script:  New().AddStart("a", 5000).AddInteract("b", 1000),
			wantErr: ErrTimestampOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.script.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestScript_Validate_AmbiguousAction(t *testing.T) {
	sc := &Script{Actions: []Action{
		{TimestampMs: 0, Start: &Start{Prompt: "a"}, End: &End{}},
	}}

	assert.ErrorIs(t, sc.Validate(), ErrAmbiguousAction)
}

func TestScript_JSON(t *testing.T) {
	t.Run("marshals as bare list", func(t *testing.T) {
		sc := New().AddStart("scene", 0).AddEnd(1000)

		data, err := json.Marshal(sc)
		require.NoError(t, err)
		assert.JSONEq(t, `[
			{"timestamp_ms":0,"start":{"prompt":"scene"}},
			{"timestamp_ms":1000,"end":{}}
		]`, string(data))
	})

	t.Run("empty script marshals as empty list", func(t *testing.T) {
		data, err := json.Marshal(New())
		require.NoError(t, err)
		assert.Equal(t, "[]", string(data))
	})

	t.Run("round trip preserves actions", func(t *testing.T) {
		orig := New().
			AddStartImage("scene", "aGVsbG8=", 0).
			AddInteract("change", 2500).
			AddEnd(5000)

		data, err := json.Marshal(orig)
		require.NoError(t, err)

		var got Script
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, orig.Actions, got.Actions)
	})
}

func TestScript_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.json")
	orig := New().AddStart("scene", 0).AddInteract("change", 1000).AddEnd(2000)

	require.NoError(t, orig.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, orig.Actions, loaded.Actions)
	assert.NoError(t, loaded.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
