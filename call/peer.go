////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package call

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// PeerConnection is the part of a WebRTC peer connection used by a call.
// *webrtc.PeerConnection implements it.
type PeerConnection interface {
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	Close() error
}

// PeerFactory creates a peer connection for a new call.
type PeerFactory func() (PeerConnection, error)

// PionFactory returns a factory of pion peer connections using the ICE
// servers in params.
func PionFactory(params Params) PeerFactory {
	cfg := webrtc.Configuration{}
	if len(params.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: params.ICEServers}}
	}
	return func() (PeerConnection, error) {
		pc, err := webrtc.NewPeerConnection(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create peer connection")
		}
		return pc, nil
	}
}

// Capture is captured local media.
type Capture interface {
	Tracks() []webrtc.TrackLocal
	Stop()
}

// MediaSource captures local media for a call.
type MediaSource interface {
	Capture(m Media) (Capture, error)
}

// Frames written by a StaticSource while no device feeds its tracks.
var (
	// Opus comfort noise frame (TOC 0xf8, one 20ms CELT frame of silence).
	opusSilence = []byte{0xf8, 0xff, 0xfe}

	// Blank VP8 payload. It carries no picture but keeps RTP flowing.
	vp8Blank = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x10, 0x00, 0x10,
		0x00}
)

const (
	audioFrame = 20 * time.Millisecond
	videoFrame = 100 * time.Millisecond
)

// StaticSource captures sample tracks that stream silence until stopped. It
// is used where no capture device exists.
type StaticSource struct {
	// StreamID groups the tracks of one capture
	StreamID string
}

// Capture creates an Opus audio track, plus a VP8 video track for video
// calls, and starts writing frames to them.
func (s StaticSource) Capture(m Media) (Capture, error) {
	stream := s.StreamID
	if stream == "" {
		stream = "chatwave"
	}

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio",
		stream)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create audio track")
	}
	var video *webrtc.TrackLocalStaticSample
	if m == Video {
		video, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video",
			stream)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create video track")
		}
	}

	c := &staticCapture{quit: make(chan struct{})}
	c.stream(audio, opusSilence, audioFrame)
	if video != nil {
		c.stream(video, vp8Blank, videoFrame)
	}
	return c, nil
}

// staticCapture writes a fixed frame to each of its tracks on a ticker.
type staticCapture struct {
	tracks []webrtc.TrackLocal
	quit   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// stream adds the track and writes frame to it every interval until Stop.
// Writes before the track is bound to a peer connection are dropped.
func (c *staticCapture) stream(track *webrtc.TrackLocalStaticSample,
	frame []byte, interval time.Duration) {
	c.tracks = append(c.tracks, track)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.quit:
				return
			case <-ticker.C:
				err := track.WriteSample(
					media.Sample{Data: frame, Duration: interval})
				if err != nil {
					jww.TRACE.Printf("[CALL] Failed to write %s frame: %+v",
						track.Kind(), err)
				}
			}
		}
	}()
}

func (c *staticCapture) Tracks() []webrtc.TrackLocal { return c.tracks }

// Stop ends the writers and waits for them to return. It is safe to call
// more than once.
func (c *staticCapture) Stop() {
	c.once.Do(func() { close(c.quit) })
	c.wg.Wait()
}

// Params configures calls.
type Params struct {
	// RingTimeout abandons a call that has not connected, whether it was
	// placed or received. Zero disables it.
	RingTimeout time.Duration

	// ICEServers are STUN/TURN URLs for connectivity checks.
	ICEServers []string
}

// GetDefaultParams returns the default call parameters.
func GetDefaultParams() Params {
	return Params{
		RingTimeout: 45 * time.Second,
		ICEServers:  []string{"stun:stun.l.google.com:19302"},
	}
}

// GetParameters returns the default parameters overridden by the JSON in
// params, if set.
func GetParameters(params string) (Params, error) {
	p := GetDefaultParams()
	if len(params) > 0 {
		err := json.Unmarshal([]byte(params), &p)
		if err != nil {
			return Params{}, err
		}
	}
	return p, nil
}
