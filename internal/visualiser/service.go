// Package visualiser streams avatar snapshots to external viewers over gRPC.
// Messages are google.protobuf.Struct values so clients need no generated
// code beyond the well-known types.
package visualiser

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/banshee-data/avatar.track/internal/avatar"
	"github.com/banshee-data/avatar.track/internal/tracker"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "avatartrack.Visualiser"
	// StreamAvatarsMethod is the full method name of the snapshot stream.
	StreamAvatarsMethod = "/" + ServiceName + "/StreamAvatars"
)

// VisualiserServer is the service implementation registered with ServiceDesc.
type VisualiserServer interface {
	// StreamAvatars sends one message per processed frame until the client
	// goes away or the server stops. The request may set "include_joints"
	// (default true).
	StreamAvatars(req *structpb.Struct, stream grpc.ServerStream) error
}

var streamAvatarsDesc = grpc.StreamDesc{
	StreamName:    "StreamAvatars",
	Handler:       streamAvatarsHandler,
	ServerStreams: true,
}

// ServiceDesc describes the Visualiser service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VisualiserServer)(nil),
	Streams:     []grpc.StreamDesc{streamAvatarsDesc},
	Metadata:    "avatartrack/visualiser.proto",
}

func streamAvatarsHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(VisualiserServer).StreamAvatars(req, stream)
}

// RegisterService registers srv on s.
func RegisterService(s *grpc.Server, srv VisualiserServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// includeJoints reads the request option.
func includeJoints(req *structpb.Struct) bool {
	if req == nil {
		return true
	}
	v, ok := req.GetFields()["include_joints"]
	if !ok {
		return true
	}
	return v.GetBoolValue()
}

func vec3(v [3]float64) []interface{} { return []interface{}{v[0], v[1], v[2]} }

func vec4(v [4]float64) []interface{} { return []interface{}{v[0], v[1], v[2], v[3]} }

// Tracking IDs are sent as decimal strings: they do not fit a double.
func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

func avatarValue(s avatar.Snapshot, withJoints bool) map[string]interface{} {
	m := map[string]interface{}{
		"id":                 formatID(s.ID),
		"instance_id":        s.InstanceID,
		"active":             s.Active,
		"updates":            s.Updates,
		"distance_to_sensor": s.DistanceToSensor,
		"base":               vec3(s.Base),
	}
	if withJoints {
		joints := make([]interface{}, 0, len(s.Joints))
		for _, j := range s.Joints {
			joints = append(joints, map[string]interface{}{
				"name":     j.Name,
				"position": vec3(j.Position),
				"rotation": vec4(j.Rotation),
				"state":    j.State,
			})
		}
		m["joints"] = joints
	}
	return m
}

// EncodeFrame builds the stream message for one processed frame.
func EncodeFrame(res tracker.FrameResult, avatars []avatar.Snapshot, withJoints bool) (*structpb.Struct, error) {
	list := make([]interface{}, 0, len(avatars))
	for _, a := range avatars {
		list = append(list, avatarValue(a, withJoints))
	}
	m := map[string]interface{}{
		"seq":     formatID(res.Seq),
		"reused":  res.Reused,
		"tracked": res.Tracked,
		"avatars": list,
	}
	if !res.Timestamp.IsZero() {
		m["timestamp"] = res.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if res.HasActive {
		m["active_id"] = formatID(res.Active.ID)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame %d: %w", res.Seq, err)
	}
	return s, nil
}

// AvatarStream is the client side of StreamAvatars.
type AvatarStream struct {
	stream grpc.ClientStream
}

// Subscribe opens a StreamAvatars call on cc.
func Subscribe(ctx context.Context, cc grpc.ClientConnInterface, withJoints bool) (*AvatarStream, error) {
	stream, err := cc.NewStream(ctx, &streamAvatarsDesc, StreamAvatarsMethod)
	if err != nil {
		return nil, err
	}
	req, err := structpb.NewStruct(map[string]interface{}{"include_joints": withJoints})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &AvatarStream{stream: stream}, nil
}

// Recv blocks for the next frame message.
func (s *AvatarStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := s.stream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
