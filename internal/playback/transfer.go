package playback

// Transfer is the playback state captured from the side being torn down
// during a mode switch.
type Transfer struct {
	Position float64
	Paused   bool
	Ended    bool
}

// AutoPlay reports whether the receiving side should start playing.
func (t Transfer) AutoPlay() bool { return !t.Paused && !t.Ended }

func transferFromLocal(p *LocalPlayer) Transfer {
	return Transfer{
		Position: p.Position(),
		Paused:   p.State() == StatePaused,
	}
}

func transferFromRemote(c RemoteClient) Transfer {
	st := c.LastKnownPlayerState()
	return Transfer{
		Position: c.LastKnownStreamPosition(),
		Paused:   st == RemotePaused,
		Ended:    st == RemoteIdle,
	}
}
