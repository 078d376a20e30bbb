package dispatch

// DeliveryPath names the producer that handed a job id to the executor.
// Both paths feed the same idempotent claim-and-run entry point.
type DeliveryPath string

const (
	PathQueue   DeliveryPath = "queue"
	PathPolling DeliveryPath = "polling"
)

func (p DeliveryPath) String() string { return string(p) }
