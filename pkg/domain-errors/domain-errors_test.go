package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorMessage() {
	s.Run("message wins over code", func() {
		err := &Error{Code: CodeInvalidState, Message: "consent request is already granted"}
		s.Equal("consent request is already granted", err.Error())
	})

	s.Run("falls back to code", func() {
		s.Equal("invalid_signature", (&Error{Code: CodeInvalidSignature}).Error())
	})
}

func (s *DomainErrorsSuite) TestIsMatchesByCode() {
	wrong := New(CodeInvalidState, "request is denied")
	s.True(errors.Is(wrong, New(CodeInvalidState, "")))
	s.False(errors.Is(wrong, New(CodeInvalidSignature, "")))
	s.False(errors.Is(wrong, errors.New("request is denied")))

	s.Run("through fmt wrapping", func() {
		wrapped := fmt.Errorf("decide: %w", New(CodeConflict, "active request exists"))
		s.True(errors.Is(wrapped, New(CodeConflict, "")))
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("keeps the inner domain code", func() {
		wrapped := Wrap(New(CodeNotFound, "consent request not found"), CodeInternal, "failed to load request")
		s.Equal(CodeNotFound, CodeOf(wrapped))
		s.Equal("failed to load request", wrapped.Error())
	})

	s.Run("applies code to foreign errors", func() {
		root := errors.New("connection reset")
		wrapped := Wrap(root, CodeInternal, "failed to append ledger block")
		s.Equal(CodeInternal, CodeOf(wrapped))
		s.True(errors.Is(wrapped, root))
	})
}

func (s *DomainErrorsSuite) TestRecodeOverridesInnerCode() {
	inner := New(CodeInvalidInput, "invalid public key")
	recoded := Recode(inner, CodeInvalidSignature, "patient verification key is unusable")

	s.Equal(CodeInvalidSignature, CodeOf(recoded))
	s.True(HasCode(recoded, CodeInvalidSignature))
	s.True(errors.Is(recoded, New(CodeInvalidSignature, "")))
	s.Equal("patient verification key is unusable", recoded.Error())
	s.Equal(inner, errors.Unwrap(recoded))
}

func (s *DomainErrorsSuite) TestHasCodeAndCodeOf() {
	s.True(HasCode(New(CodePermissionDenied, "no active consent"), CodePermissionDenied))
	s.False(HasCode(errors.New("plain"), CodePermissionDenied))
	s.False(HasCode(nil, CodeNotFound))
	s.Equal(CodeInternal, CodeOf(errors.New("plain")))
	s.Equal(CodeIntegrity, CodeOf(New(CodeIntegrity, "chain broken at block 3")))
}
