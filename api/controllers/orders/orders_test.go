package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-backend/api/middleware"
	internalorders "github.com/angelmondragon/settlement-backend/internal/orders"
	"github.com/angelmondragon/settlement-backend/internal/shipments"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
)

type stubOrderReader struct {
	owner  uuid.UUID
	listed internalorders.ListParams
}

func (s *stubOrderReader) Get(_ context.Context, id uuid.UUID) (*internalorders.OrderDetail, error) {
	detail := &internalorders.OrderDetail{}
	detail.ID = id
	detail.SellerID = s.owner
	return detail, nil
}

func (s *stubOrderReader) List(_ context.Context, params internalorders.ListParams) (*internalorders.ListResult, error) {
	s.listed = params
	return &internalorders.ListResult{}, nil
}

type stubBooker struct {
	input shipments.BookInput
	err   error
}

func (s *stubBooker) Book(_ context.Context, input shipments.BookInput) (*models.Shipment, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	awb := "AWB9001"
	return &models.Shipment{ID: uuid.New(), OrderID: input.OrderID, SellerID: input.SellerID, AWB: &awb, Status: enums.ShipmentStatusPickupScheduled}, nil
}

type stubTracking struct{}

func (stubTracking) GetByOrder(_ context.Context, orderID uuid.UUID) (*shipments.Detail, error) {
	return &shipments.Detail{
		Shipment: models.Shipment{OrderID: orderID, Status: enums.ShipmentStatusInTransit},
		Scans:    []models.ShipmentScan{{Status: "in_transit", Description: "Reached hub"}},
	}, nil
}

func sellerRoute(t *testing.T, method, pattern, target, body string, h http.HandlerFunc, sellerID uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Method(method, pattern, h)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := middleware.WithActor(req.Context(), uuid.New(), enums.ActorRoleSeller)
	ctx = middleware.WithSellerID(ctx, sellerID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func TestListForcesSellerFilter(t *testing.T) {
	t.Parallel()

	svc := &stubOrderReader{}
	sellerID := uuid.New()
	rec := sellerRoute(t, http.MethodGet, "/orders", "/orders?seller_id="+uuid.NewString()+"&order_status=shipped", "", List(svc, nil), sellerID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, svc.listed.SellerID)
	assert.Equal(t, sellerID, *svc.listed.SellerID)
	require.NotNil(t, svc.listed.OrderStatus)
	assert.Equal(t, enums.OrderStatusShipped, *svc.listed.OrderStatus)
}

func TestDetailHidesOtherSellersOrders(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	svc := &stubOrderReader{owner: owner}
	orderID := uuid.NewString()

	rec := sellerRoute(t, http.MethodGet, "/orders/{orderId}", "/orders/"+orderID, "", Detail(svc, nil), owner)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = sellerRoute(t, http.MethodGet, "/orders/{orderId}", "/orders/"+orderID, "", Detail(svc, nil), uuid.New())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookShipment(t *testing.T) {
	t.Parallel()

	booker := &stubBooker{}
	sellerID := uuid.New()
	orderID := uuid.New()
	body := `{"parcel":{"weight_kg":0.5,"length_cm":20,"breadth_cm":15,"height_cm":5}}`

	rec := sellerRoute(t, http.MethodPost, "/orders/{orderId}/shipment", "/orders/"+orderID.String()+"/shipment", body, BookShipment(booker, nil), sellerID)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, orderID, booker.input.OrderID)
	assert.Equal(t, sellerID, booker.input.SellerID)
	assert.NotEqual(t, uuid.Nil, booker.input.ActorID)
	assert.InDelta(t, 0.5, booker.input.Parcel.WeightKG, 0.0001)

	var resp struct {
		Data shipmentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.AWB)
	assert.Equal(t, "AWB9001", *resp.Data.AWB)

	rec = sellerRoute(t, http.MethodPost, "/orders/{orderId}/shipment", "/orders/"+orderID.String()+"/shipment",
		`{"parcel":{"weight_kg":0}}`, BookShipment(booker, nil), sellerID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	booker.err = pkgerrors.New(pkgerrors.CodeConflict, "order already has a shipment")
	rec = sellerRoute(t, http.MethodPost, "/orders/{orderId}/shipment", "/orders/"+orderID.String()+"/shipment", body, BookShipment(booker, nil), sellerID)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestShipmentTracking(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	rec := sellerRoute(t, http.MethodGet, "/orders/{orderId}/shipment", "/orders/"+uuid.NewString()+"/shipment", "",
		Shipment(&stubOrderReader{owner: owner}, stubTracking{}, nil), owner)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data shipmentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, enums.ShipmentStatusInTransit, resp.Data.Status)
	require.Len(t, resp.Data.Scans, 1)
	assert.Equal(t, "Reached hub", resp.Data.Scans[0].Description)
}
