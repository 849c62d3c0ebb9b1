package members_test

import (
	"encoding/json"
	"testing"

	members "github.com/goliatone/go-members"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload members.LoginPayload
		wantErr bool
	}{
		{
			name: "Valid payload",
			payload: members.LoginPayload{
				MemberNumber: "25000042",
				Password:     "12345678",
			},
			wantErr: false,
		},
		{
			name: "Member number with letters",
			payload: members.LoginPayload{
				MemberNumber: "abc12345",
				Password:     "12345678",
			},
			wantErr: true,
		},
		{
			name: "Member number too short",
			payload: members.LoginPayload{
				MemberNumber: "2500001",
				Password:     "12345678",
			},
			wantErr: true,
		},
		{
			name: "Member number too long",
			payload: members.LoginPayload{
				MemberNumber: "250000421",
				Password:     "12345678",
			},
			wantErr: true,
		},
		{
			name: "Missing password",
			payload: members.LoginPayload{
				MemberNumber: "25000042",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPasswordChangePayloadValidate(t *testing.T) {
	base := members.PasswordChangePayload{
		MemberNumber:    "25000042",
		CurrentPassword: "12345678",
	}

	tests := []struct {
		name        string
		newPassword string
		wantErr     bool
	}{
		{
			name:        "Minimum length all digits",
			newPassword: "12345678",
			wantErr:     false,
		},
		{
			name:        "Longer all digits",
			newPassword: "123456789012",
			wantErr:     false,
		},
		{
			name:        "Too short",
			newPassword: "1234567",
			wantErr:     true,
		},
		{
			name:        "Contains letters",
			newPassword: "abc12345",
			wantErr:     true,
		},
		{
			name:        "Contains spaces",
			newPassword: "1234 5678",
			wantErr:     true,
		},
		{
			name:        "Empty",
			newPassword: "",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := base
			payload.NewPassword = tt.newPassword

			err := payload.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPasswordChangeResponseBody(t *testing.T) {
	body, err := json.Marshal(members.PasswordChangeResponse{OK: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(body))
}

func TestGuestCreatePayloadValidate(t *testing.T) {
	assert.NoError(t, members.GuestCreatePayload{}.Validate())
	assert.NoError(t, members.GuestCreatePayload{DisplayName: "Visitor", Plan: "trial"}.Validate())

	long := make([]byte, 201)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, members.GuestCreatePayload{DisplayName: string(long)}.Validate())
}
