package skeleton

import (
	"encoding/json"
	"fmt"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Wire format: one JSON object per frame. Sources carry it as a JSON line
// (replay files, serial bridge) or as a single UDP datagram.
//
//	{"seq":12,"ts_ns":1700000000000000000,"bodies":[
//	  {"id":72057594037928311,"tracked":true,"joints":[
//	    {"type":"Head","pos":[0.1,0.6,2.1],"rot":[0,0,0,1],"state":"Tracked"}]}]}
//
// Rotations are [x, y, z, w]. Joints omitted from a body are NotTracked.
type wireFrame struct {
	Seq            uint64      `json:"seq"`
	TimestampNanos int64       `json:"ts_ns,omitempty"`
	Bodies         []*wireBody `json:"bodies"`
}

type wireBody struct {
	ID      uint64      `json:"id"`
	Tracked bool        `json:"tracked"`
	Joints  []wireJoint `json:"joints,omitempty"`
}

type wireJoint struct {
	Type  string      `json:"type"`
	Pos   [3]float64  `json:"pos"`
	Rot   *[4]float64 `json:"rot,omitempty"`
	State string      `json:"state"`
}

// DecodeFrame parses one wire frame. Unknown joint names are logged and
// skipped; they never fail the frame. A null body entry stays a nil slot.
func DecodeFrame(data []byte) (*Frame, error) {
	var wf wireFrame
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	f := &Frame{Seq: wf.Seq, Bodies: make([]*Body, len(wf.Bodies))}
	if wf.TimestampNanos != 0 {
		f.Timestamp = time.Unix(0, wf.TimestampNanos)
	}

	for i, wb := range wf.Bodies {
		if wb == nil {
			continue
		}
		b := NewBody(wb.ID, wb.Tracked)
		for _, wj := range wb.Joints {
			jt, err := ParseJointType(wj.Type)
			if err != nil {
				opsf("frame %d body %d: %v; skipped", wf.Seq, wb.ID, err)
				continue
			}
			rot := Identity
			if wj.Rot != nil {
				rot = quat.Number{Imag: wj.Rot[0], Jmag: wj.Rot[1], Kmag: wj.Rot[2], Real: wj.Rot[3]}
			}
			b.SetJoint(jt, r3.Vec{X: wj.Pos[0], Y: wj.Pos[1], Z: wj.Pos[2]}, rot, ParseTrackingState(wj.State))
		}
		f.Bodies[i] = b
	}

	tracef("decoded frame %d with %d body slots", f.Seq, len(f.Bodies))
	return f, nil
}

// EncodeFrame renders a frame in the wire format. NotTracked joints at the
// origin with identity rotation are omitted.
func EncodeFrame(f *Frame) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("cannot encode nil frame")
	}
	wf := wireFrame{Seq: f.Seq, Bodies: make([]*wireBody, len(f.Bodies))}
	if !f.Timestamp.IsZero() {
		wf.TimestampNanos = f.Timestamp.UnixNano()
	}

	for i, b := range f.Bodies {
		if b == nil {
			continue
		}
		wb := &wireBody{ID: b.TrackingID, Tracked: b.Tracked}
		for _, j := range b.Joints {
			if j.State == NotTracked && j.Position == (r3.Vec{}) && j.Orientation == Identity {
				continue
			}
			rot := [4]float64{j.Orientation.Imag, j.Orientation.Jmag, j.Orientation.Kmag, j.Orientation.Real}
			wb.Joints = append(wb.Joints, wireJoint{
				Type:  j.Type.String(),
				Pos:   [3]float64{j.Position.X, j.Position.Y, j.Position.Z},
				Rot:   &rot,
				State: j.State.String(),
			})
		}
		wf.Bodies[i] = wb
	}

	data, err := json.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame %d: %w", f.Seq, err)
	}
	return data, nil
}
