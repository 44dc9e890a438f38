package felproto

// mockTransport is a minimal usbtransport.Transport stand-in: writes
// are logged verbatim, reads are served from a scripted queue of
// fixed-size reply buffers (payload then status, for each FEL call).
type mockTransport struct {
	writes  [][]byte
	replies [][]byte
}

func (m *mockTransport) Send(data []byte, progress func(sent int)) error {
	m.writes = append(m.writes, append([]byte(nil), data...))
	if progress != nil {
		progress(len(data))
	}
	return nil
}

func (m *mockTransport) Recv(buf []byte) (int, error) {
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return copy(buf, reply), nil
}

func (m *mockTransport) Close() error { return nil }
