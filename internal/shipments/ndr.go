package shipments

import (
	"context"
	"fmt"

	"github.com/angelmondragon/settlement-backend/internal/effects"
	"github.com/angelmondragon/settlement-backend/internal/notifications"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
)

// NDRHandler reports a failed delivery attempt. It changes no state.
type NDRHandler struct {
	repo       Repository
	dispatcher effectDispatcher
	logg       *logger.Logger
}

func (h *NDRHandler) Handle(ctx context.Context, order *models.Order, shipment *models.Shipment, detail string) {
	meta := map[string]string{"order_id": order.ID.String(), "shipment_id": shipment.ID.String()}
	if shipment.AWB != nil {
		meta["awb"] = *shipment.AWB
	}
	if detail != "" {
		meta["detail"] = detail
	}
	effs := []effects.Effect{effects.Notify(notifications.Notification{
		UserID:   order.BuyerID,
		Role:     enums.ActorRoleBuyer,
		Type:     enums.NotificationDeliveryFailed,
		Title:    "Delivery attempt failed",
		Message:  fmt.Sprintf("The courier could not deliver order %s. They will try again.", order.OrderNumber),
		Link:     orderLink(order.ID),
		Metadata: meta,
	})}
	seller, err := h.repo.FindSeller(ctx, order.SellerID)
	if err != nil {
		h.logg.Error(ctx, "load seller for failed delivery notice", err)
	} else {
		effs = append(effs, effects.Notify(notifications.Notification{
			UserID:   seller.UserID,
			Role:     enums.ActorRoleSeller,
			Type:     enums.NotificationDeliveryFailed,
			Title:    "Delivery attempt failed",
			Message:  fmt.Sprintf("Delivery of order %s failed. The buyer may need to be contacted.", order.OrderNumber),
			Link:     orderLink(order.ID),
			Metadata: meta,
		}))
	}
	if h.dispatcher != nil {
		h.dispatcher.Dispatch(ctx, effs)
	}
}
