package mqttc

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/RoanBrand/mqttc/internal/model"
	"github.com/RoanBrand/mqttc/internal/packet"
)

func BenchmarkQoS0(b *testing.B) {
	benchmarkPubs(b, QoS0)
}

func BenchmarkQoS1(b *testing.B) {
	benchmarkPubs(b, QoS1)
}

func BenchmarkQoS2(b *testing.B) {
	benchmarkPubs(b, QoS2)
}

func benchmarkPubs(b *testing.B, qos QoS) {
	logrus.SetLevel(logrus.ErrorLevel)

	tr := &pipeTransport{brokers: make(chan *fakeBroker, 1)}
	c := NewClient()
	c.Config.Reconnect.Disabled = true
	c.Transport = tr
	defer c.Close()

	errs := make(chan error, 1)
	go func() {
		_, err := c.Connect(context.Background())
		errs <- err
	}()
	fb := <-tr.brokers
	<-fb.in
	if err := fb.write(packet.ConnAck{}); err != nil {
		b.Fatal(err)
	}
	if err := <-errs; err != nil {
		b.Fatal(err)
	}

	// acknowledge everything the client publishes
	go func() {
		for p := range fb.in {
			var reply packet.Packet
			switch p := p.(type) {
			case packet.Publish:
				switch p.QoS {
				case model.QoS1:
					reply = packet.PubAck{ID: p.ID}
				case model.QoS2:
					reply = packet.PubRec{ID: p.ID}
				}
			case packet.PubRel:
				reply = packet.PubComp{ID: p.ID}
			}
			if reply != nil {
				if err := fb.write(reply); err != nil {
					return
				}
			}
		}
	}()

	msg := Message{Topic: "t", Payload: make([]byte, 64), QoS: qos}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.Publish(context.Background(), msg); err != nil {
			b.Fatal(err)
		}
	}
}
