package enums

// NotificationType enumerates the user-facing notifications emitted by the settlement pipeline.
type NotificationType string

const (
	NotificationOrderConfirmed   NotificationType = "order_confirmed"
	NotificationNewOrder         NotificationType = "new_order"
	NotificationOrderShipped     NotificationType = "order_shipped"
	NotificationOrderDelivered   NotificationType = "order_delivered"
	NotificationOrderCancelled   NotificationType = "order_cancelled"
	NotificationRefundInitiated  NotificationType = "refund_initiated"
	NotificationRefundPending    NotificationType = "refund_pending"
	NotificationDeliveryFailed   NotificationType = "delivery_failed"
	NotificationRTOAfterDelivery NotificationType = "rto_after_delivery"
	NotificationPayoutPaid       NotificationType = "payout_paid"
	NotificationPayoutFailed     NotificationType = "payout_failed"
	NotificationPayoutOnHold     NotificationType = "payout_on_hold"
)

var validNotificationTypes = []NotificationType{
	NotificationOrderConfirmed,
	NotificationNewOrder,
	NotificationOrderShipped,
	NotificationOrderDelivered,
	NotificationOrderCancelled,
	NotificationRefundInitiated,
	NotificationRefundPending,
	NotificationDeliveryFailed,
	NotificationRTOAfterDelivery,
	NotificationPayoutPaid,
	NotificationPayoutFailed,
	NotificationPayoutOnHold,
}

func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	return member(validNotificationTypes, n)
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	return parse("notification type", validNotificationTypes, value)
}
