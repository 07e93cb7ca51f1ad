package validate

import (
	"testing"

	"github.com/AniketChoudhary834/LMS/internal/apperr"
)

type registerReq struct {
	Name  string `json:"userName" validate:"required"`
	Email string `json:"userEmail" validate:"required,email"`
	Role  string `json:"role" validate:"omitempty,oneof=student instructor"`
	OTP   string `json:"otp,omitempty" validate:"omitempty,len=6,numeric"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name    string
		req     registerReq
		wantMsg string
	}{
		{name: "ok", req: registerReq{Name: "asha", Email: "asha@example.com"}},
		{name: "ok with role", req: registerReq{Name: "asha", Email: "asha@example.com", Role: "instructor"}},
		{name: "missing name", req: registerReq{Email: "asha@example.com"}, wantMsg: "userName is required"},
		{name: "bad email", req: registerReq{Name: "asha", Email: "nope"}, wantMsg: "userEmail must be a valid email"},
		{name: "bad role", req: registerReq{Name: "asha", Email: "a@b.co", Role: "admin"}, wantMsg: "role must be one of: student instructor"},
		{name: "short otp", req: registerReq{Name: "asha", Email: "a@b.co", OTP: "123"}, wantMsg: "otp must have exactly 6 characters"},
		{name: "alpha otp", req: registerReq{Name: "asha", Email: "a@b.co", OTP: "12345a"}, wantMsg: "otp must be numeric"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.req)
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if apperr.KindOf(err) != apperr.Validation {
				t.Fatalf("expected validation kind, got %v", err)
			}
			if got := apperr.MessageOf(err); got != tt.wantMsg {
				t.Fatalf("message = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}
