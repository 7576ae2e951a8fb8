package queue

import (
	"sync"

	"github.com/RoanBrand/mqttc/internal/model"
)

// Kind of event carried by an Item.
type Kind uint8

const (
	Connect Kind = iota + 1
	Disconnect
	Message
	Warning
	Error
)

// Item is one event waiting for delivery.
type Item struct {
	Kind Kind

	Msg            model.Message // Message
	Err            error         // Disconnect, Warning, Error
	SessionPresent bool          // Connect
	Forced         bool          // Disconnect

	next, prev *Item
}

var pool = sync.Pool{}

func GetItem(k Kind) (i *Item) {
	if pi := pool.Get(); pi == nil {
		i = new(Item)
	} else {
		i = pi.(*Item)
	}

	i.Kind = k
	return i
}

func ReturnItem(i *Item) {
	*i = Item{}
	pool.Put(i)
}
