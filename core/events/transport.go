package events

const (
	KindTransportFailed Kind = "transport.failed"
	KindTransportClosed Kind = "transport.closed"
)

// TransportFailed reports a mid-session stream failure.
type TransportFailed struct {
	Base
	Err error
}

func NewTransportFailed(err error) TransportFailed {
	return TransportFailed{Base: newBase(KindTransportFailed), Err: err}
}

func (e TransportFailed) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// TransportClosed reports that the remote side ended the stream normally.
type TransportClosed struct {
	Base
}

func NewTransportClosed() TransportClosed {
	return TransportClosed{Base: newBase(KindTransportClosed)}
}
