package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"rekamed/internal/ledger"
	dErrors "rekamed/pkg/domain-errors"
)

type stubService struct {
	blocks     []*ledger.Block
	report     *ledger.Report
	err        error
	lastFilter ledger.ListFilter
}

func (s *stubService) List(_ context.Context, f ledger.ListFilter) ([]*ledger.Block, error) {
	s.lastFilter = f
	return s.blocks, s.err
}

func (s *stubService) Verify(context.Context, string) (*ledger.Report, error) {
	return s.report, s.err
}

type LedgerHandlerSuite struct {
	suite.Suite
	svc    *stubService
	router chi.Router
}

func TestLedgerHandlerSuite(t *testing.T) {
	suite.Run(t, new(LedgerHandlerSuite))
}

func (s *LedgerHandlerSuite) SetupTest() {
	s.svc = &stubService{}
	s.router = chi.NewRouter()
	New(s.svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *LedgerHandlerSuite) do(target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func (s *LedgerHandlerSuite) TestListOmitsPayload() {
	s.svc.blocks = []*ledger.Block{{
		BlockID:      0,
		RecordID:     "req-1",
		Kind:         "consent.requested",
		DataHash:     "ab",
		PreviousHash: ledger.GenesisHash,
		Payload:      []byte(`{"secret":true}`),
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}

	w := s.do("/ledger?order=desc&limit=5&offset=2")
	s.Equal(http.StatusOK, w.Code)
	s.NotContains(w.Body.String(), "payload")

	var got []BlockResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &got))
	s.Require().Len(got, 1)
	s.Equal("req-1", got[0].RecordID)
	s.Equal(ledger.ListFilter{Order: ledger.OrderDesc, Limit: 5, Offset: 2}, s.svc.lastFilter)
}

func (s *LedgerHandlerSuite) TestListRejectsBadQuery() {
	s.Equal(http.StatusBadRequest, s.do("/ledger?order=sideways").Code)
	s.Equal(http.StatusBadRequest, s.do("/ledger?limit=abc").Code)
}

func (s *LedgerHandlerSuite) TestVerifyBrokenChainIsStill200() {
	bad := int64(3)
	s.svc.report = &ledger.Report{OK: false, Checked: 3, FirstBadBlockID: &bad, Reason: ledger.ReasonDataMismatch}

	w := s.do("/ledger/verify")
	s.Equal(http.StatusOK, w.Code)

	var got ledger.Report
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &got))
	s.False(got.OK)
	s.Equal(int64(3), *got.FirstBadBlockID)
}

func (s *LedgerHandlerSuite) TestVerifyStoreFailureIs500() {
	s.svc.err = dErrors.Wrap(errors.New("disk"), dErrors.CodeInternal, "failed to verify ledger")
	s.Equal(http.StatusInternalServerError, s.do("/ledger/verify").Code)
}
