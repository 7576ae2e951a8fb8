package mqttc

import (
	"github.com/RoanBrand/mqttc/internal/model"
	"github.com/RoanBrand/mqttc/internal/packet"
	"github.com/RoanBrand/mqttc/internal/router"
)

type (
	// Message is an application message published or received.
	Message = model.Message
	QoS     = model.QoS

	// Handler receives messages routed by topic pattern, see Listen.
	Handler = router.Handler

	// ConnectError is returned when the broker refused the connection.
	ConnectError      = packet.ConnectError
	ConnectReturnCode = packet.ConnectReturnCode
	// SubscribeError is returned when the broker refused a subscription.
	SubscribeError = packet.SubscribeError
)

const (
	QoS0    = model.QoS0
	QoS1    = model.QoS1
	QoS2    = model.QoS2
	QoSFail = model.QoSFail
)

const (
	Accepted                    = packet.Accepted
	UnacceptableProtocolVersion = packet.UnacceptableProtocolVersion
	IdentifierRejected          = packet.IdentifierRejected
	ServerUnavailable           = packet.ServerUnavailable
	BadUsernameOrPassword       = packet.BadUsernameOrPassword
	NotAuthorized               = packet.NotAuthorized
)
