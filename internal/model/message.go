package model

import "strconv"

// QoS is the delivery guarantee of a PUBLISH, or a SUBACK return code.
type QoS uint8

const (
	QoS0 QoS = iota // at most once
	QoS1            // at least once
	QoS2            // exactly once

	// QoSFail is only ever returned in a SUBACK for a refused subscription.
	QoSFail QoS = 0x80
)

func (q QoS) Valid() bool {
	return q <= QoS2
}

func (q QoS) String() string {
	if q == QoSFail {
		return "Failure"
	}
	return "QoS" + strconv.Itoa(int(q))
}

// Message is an application message, published by or delivered to the client.
type Message struct {
	Topic     string
	Payload   []byte
	QoS       QoS
	Retain    bool
	Duplicate bool

	// Params holds values for ":name" segments of the topic filter a message was routed by.
	Params map[string]string
}
