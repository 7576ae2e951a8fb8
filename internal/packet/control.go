package packet

import "github.com/RoanBrand/mqttc/internal/model"

// Packets without variable header or payload.

type PingReq struct{}
type PingResp struct{}
type Disconnect struct{}

func (PingReq) Type() model.Type { return model.PINGREQ }
func (PingResp) Type() model.Type { return model.PINGRESP }
func (Disconnect) Type() model.Type { return model.DISCONNECT }

func (PingReq) isPacket() {}
func (PingResp) isPacket() {}
func (Disconnect) isPacket() {}
