package enums

// SubscriptionStatus tracks a mess plan subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// ServiceOrderStatus tracks an ancillary service order such as laundry.
type ServiceOrderStatus string

const (
	ServiceOrderStatusPending    ServiceOrderStatus = "pending"
	ServiceOrderStatusConfirmed  ServiceOrderStatus = "confirmed"
	ServiceOrderStatusInProgress ServiceOrderStatus = "in_progress"
	ServiceOrderStatusCompleted  ServiceOrderStatus = "completed"
	ServiceOrderStatusCancelled  ServiceOrderStatus = "cancelled"
)

var (
	subscriptionStatuses = domain[SubscriptionStatus]{"subscription status", []SubscriptionStatus{
		SubscriptionStatusActive, SubscriptionStatusPaused, SubscriptionStatusCancelled, SubscriptionStatusExpired,
	}}
	serviceOrderStatuses = domain[ServiceOrderStatus]{"service order status", []ServiceOrderStatus{
		ServiceOrderStatusPending, ServiceOrderStatusConfirmed, ServiceOrderStatusInProgress,
		ServiceOrderStatusCompleted, ServiceOrderStatusCancelled,
	}}
)

func (s SubscriptionStatus) IsValid() bool { return subscriptionStatuses.has(s) }

func (s ServiceOrderStatus) IsValid() bool { return serviceOrderStatuses.has(s) }
