package link

// DeviceInfo es la vista de sesión del dispositivo que se envía al proxy
type DeviceInfo struct {
	IMEI       string
	DeviceID   int64
	Protocol   string
	RemoteIP   string
	RemotePort int
	State      DeviceState
}
