package sellers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-backend/api/middleware"
	internalsellers "github.com/angelmondragon/settlement-backend/internal/sellers"
	"github.com/angelmondragon/settlement-backend/pkg/types"
)

type stubSellers struct {
	saved    types.BankDetails
	savedFor uuid.UUID
}

func (s *stubSellers) Get(_ context.Context, id uuid.UUID) (*internalsellers.SellerView, error) {
	return &internalsellers.SellerView{ID: id, Name: "Kiran Textiles"}, nil
}

func (s *stubSellers) SaveBankDetails(_ context.Context, sellerID uuid.UUID, bank types.BankDetails) (*internalsellers.BankDetailsResult, error) {
	s.saved, s.savedFor = bank, sellerID
	return &internalsellers.BankDetailsResult{
		Seller:        internalsellers.SellerView{ID: sellerID, BankDetails: bank, BankComplete: bank.IsComplete()},
		ReleasedHolds: 2,
	}, nil
}

func sellerRequest(method, body string, sellerID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/seller/me", strings.NewReader(body))
	return req.WithContext(middleware.WithSellerID(req.Context(), sellerID))
}

func TestSaveBankDetails(t *testing.T) {
	t.Parallel()

	svc := &stubSellers{}
	sellerID := uuid.New()
	rec := httptest.NewRecorder()
	SaveBankDetails(svc, nil).ServeHTTP(rec, sellerRequest(http.MethodPut,
		`{"account_holder":" Kiran R ","account_number":"001122334455","routing_code":"HDFC0000123","bank_name":"HDFC"}`, sellerID))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, sellerID, svc.savedFor)
	assert.Equal(t, "Kiran R", svc.saved.AccountHolder)

	var resp struct {
		Data internalsellers.BankDetailsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.ReleasedHolds)
	assert.True(t, resp.Data.Seller.BankComplete)
}

func TestSaveBankDetailsValidation(t *testing.T) {
	t.Parallel()

	svc := &stubSellers{}
	rec := httptest.NewRecorder()
	SaveBankDetails(svc, nil).ServeHTTP(rec, sellerRequest(http.MethodPut, `{"account_holder":"Kiran"}`, uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, uuid.Nil, svc.savedFor)
}

func TestMeRequiresSellerContext(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	Me(&stubSellers{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/seller/me", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	sellerID := uuid.New()
	rec = httptest.NewRecorder()
	Me(&stubSellers{}, nil).ServeHTTP(rec, sellerRequest(http.MethodGet, "", sellerID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), sellerID.String())
}
