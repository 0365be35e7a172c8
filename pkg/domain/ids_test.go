package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "rekamed/pkg/domain-errors"
)

func TestParseRejectsMalformedIDs(t *testing.T) {
	for _, input := range []string{"", "not-a-uuid", uuid.Nil.String()} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseRequestID(input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestIDsRoundTripThroughJSON(t *testing.T) {
	type body struct {
		PatientID UserID    `json:"patient_id"`
		RequestID RequestID `json:"request_id"`
	}
	in := body{PatientID: UserID(uuid.New()), RequestID: NewRequestID()}

	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), in.PatientID.String())

	var out body
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestUnmarshalRejectsBadID(t *testing.T) {
	var out struct {
		PatientID UserID `json:"patient_id"`
	}
	err := json.Unmarshal([]byte(`{"patient_id":"p1"}`), &out)
	require.Error(t, err)
}

func TestUnsetIDsRoundTripThroughJSON(t *testing.T) {
	type entry struct {
		ActorID  UserID   `json:"actor_id"`
		RecordID RecordID `json:"record_id"`
	}

	raw, err := json.Marshal(entry{})
	require.NoError(t, err)

	var out entry
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.True(t, out.ActorID.IsNil())
	assert.True(t, out.RecordID.IsNil())

	_, err = ParseUserID(uuid.Nil.String())
	assert.Error(t, err, "explicit parsing still refuses the nil id")
}
