package queue

// MessageQueue is the event bus the services publish station, connector and
// transaction events on. Subjects are dot-separated (csms.station.status);
// delivery is fan-out, every subscriber sees every message.
type MessageQueue interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte) error) error
	Close() error
}
