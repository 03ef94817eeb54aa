package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_LoginResult(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantError bool
	}{
		{"success with token", `{"success":true,"token":"abc"}`, false},
		{"failure with error", `{"success":false,"error":"bad password"}`, false},
		{"null token", `{"success":false,"token":null}`, false},
		{"missing success", `{"token":"abc"}`, true},
		{"success not boolean", `{"success":"yes","token":"abc"}`, true},
		{"array", `[]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(LoginResult, []byte(tt.doc))
			if tt.wantError {
				require.Error(t, err)
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, LoginResult, verr.Schema)
				assert.NotEmpty(t, verr.Errors)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidate_CandidateList(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantError bool
		field     string
	}{
		{"empty list", `[]`, false, ""},
		{
			name: "full candidate",
			doc:  `[{"id":"c1","name":"Jane Doe","title":"Software Engineer","skills":["Python","AWS"],"experience":"5 years"}]`,
		},
		{"minimal candidate", `[{"id":"c1","name":"Jane","title":"Engineer"}]`, false, ""},
		{"object instead of list", `{"error":"index unavailable"}`, true, "(root)"},
		{"missing id", `[{"name":"Jane","title":"Engineer"}]`, true, "0"},
		{"empty name", `[{"id":"c1","name":"","title":"Engineer"}]`, true, "0.name"},
		{"skills as string", `[{"id":"c1","name":"Jane","title":"Engineer","skills":"Python"}]`, true, "0.skills"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(CandidateList, []byte(tt.doc))
			if !tt.wantError {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			fields := make([]string, 0, len(verr.Errors))
			for _, fe := range verr.Errors {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidate_CreateRecordResult(t *testing.T) {
	assert.NoError(t, Validate(CreateRecordResult, []byte(`{"status":"saved","name":"Jane"}`)))
	assert.NoError(t, Validate(CreateRecordResult, []byte(`{}`)))
	assert.Error(t, Validate(CreateRecordResult, []byte(`{"status":1}`)))
	assert.Error(t, Validate(CreateRecordResult, []byte(`"saved"`)))
}

func TestValidate_RegistryAgent(t *testing.T) {
	assert.NoError(t, Validate(RegistryAgent, []byte(`{"address":"http://auth:8001/a2a"}`)))
	assert.NoError(t, Validate(RegistryAgent, []byte(`{"name":"auth_agent","url":"http://auth:8001/a2a"}`)))
	assert.Error(t, Validate(RegistryAgent, []byte(`{"name":"auth_agent"}`)))
	assert.Error(t, Validate(RegistryAgent, []byte(`{"address":""}`)))
}

func TestValidate_NotJSON(t *testing.T) {
	err := Validate(CandidateList, []byte(`{ invalid json }`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "(root)", verr.Errors[0].Field)
}

func TestValidate_UnknownSchema(t *testing.T) {
	err := Validate("nope", []byte(`{}`))
	var loadErr *SchemaLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, err.Error(), "nope.schema.json")
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`

	assert.NoError(t, ValidateJSONString(schema, `{"name":"x"}`))

	err := ValidateJSONString(schema, `{"name":1}`)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Errors[0].Field)

	err = ValidateJSONString(`{"type":`, `{}`)
	var loadErr *SchemaLoadError
	assert.ErrorAs(t, err, &loadErr)
}
