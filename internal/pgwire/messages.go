package pgwire

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
)

// message accumulates one backend message body.
type message struct {
	typ  byte
	body []byte
}

func (m *message) cstring(s string) *message {
	m.body = append(m.body, s...)
	m.body = append(m.body, 0)
	return m
}

func (m *message) int32(v int32) *message {
	m.body = binary.BigEndian.AppendUint32(m.body, uint32(v))
	return m
}

func (m *message) byte(b byte) *message {
	m.body = append(m.body, b)
	return m
}

func (m *message) writeTo(conn net.Conn) error {
	packet := make([]byte, 5, 5+len(m.body))
	packet[0] = m.typ
	binary.BigEndian.PutUint32(packet[1:5], uint32(4+len(m.body)))
	packet = append(packet, m.body...)
	_, err := conn.Write(packet)
	return err
}

func writeStartupResponse(conn net.Conn, key backendKey) error {
	msgs := []*message{
		(&message{typ: 'R'}).int32(0),
		(&message{typ: 'S'}).cstring("server_version").cstring("16.0"),
		(&message{typ: 'S'}).cstring("client_encoding").cstring("UTF8"),
		(&message{typ: 'K'}).int32(key.processID).int32(key.secretKey),
		(&message{typ: 'Z'}).byte('I'),
	}
	for _, m := range msgs {
		if err := m.writeTo(conn); err != nil {
			return err
		}
	}
	return nil
}

func writeReadyForQuery(conn net.Conn) error {
	return (&message{typ: 'Z'}).byte('I').writeTo(conn)
}

func writeCommandComplete(conn net.Conn, tag string) error {
	return (&message{typ: 'C'}).cstring(tag).writeTo(conn)
}

func writeEmptyQueryResponse(conn net.Conn) error {
	return (&message{typ: 'I'}).writeTo(conn)
}

func writeError(conn net.Conn, code, text string) error {
	m := &message{typ: 'E'}
	m.byte('S').cstring("ERROR")
	m.byte('C').cstring(code)
	m.byte('M').cstring(text)
	m.byte(0)
	return m.writeTo(conn)
}

func readStartupHeader(r io.Reader) (int32, int32, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, 0, err
	}
	return int32(binary.BigEndian.Uint32(header[0:4])), int32(binary.BigEndian.Uint32(header[4:8])), nil
}

func parseStartupParams(payload []byte) map[string]string {
	params := map[string]string{}
	parts := bytes.Split(payload, []byte{0})
	for i := 0; i+1 < len(parts); i += 2 {
		k := string(parts[i])
		if k == "" {
			break
		}
		params[k] = string(parts[i+1])
	}
	return params
}
