// Package gofaye is a Bayeux client session for Faye and CometD servers.
// It speaks the protocol over long-polling HTTP or a websocket, picked by
// the scheme of the server URI.
//
// Create a session with NewSession. http and https URIs use long-polling,
// ws and wss URIs a websocket:
//
//	session, err := gofaye.NewSession("wss://faye.example.com/bayeux")
//
// Everything the server says is reported through callbacks registered on
// the session. Subscribe once the handshake completed:
//
//	session.OnHandshakeResponse(func(m gofaye.Message) {
//		if m.Successful {
//			_ = session.Subscribe("/chat/*")
//		}
//	})
//	session.OnMessageReceived(func(m gofaye.Message) {
//		fmt.Println(m.Channel, string(m.Data))
//	})
//	if err := session.Connect(""); err != nil {
//		return err
//	}
//
// Extensions implement MessageExtender and see every message on its way out
// and in:
//
//	type Example struct{}
//	func (e *Example) Registered(name string, session *gofaye.Session) {}
//	func (e *Example) Unregistered() {}
//	func (e *Example) Outgoing(m *gofaye.Message) {
//		if m.Channel == gofaye.MetaHandshake {
//			_ = m.SetExtField("example", true)
//		}
//	}
//	func (e *Example) Incoming(m *gofaye.Message) {}
//
//	session, err := gofaye.NewSession(uri, gofaye.WithExtension(&Example{}))
package gofaye
