package grpc

import (
	"context"
	"errors"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/emmett/sphinxvox/internal/control"
	"github.com/emmett/sphinxvox/internal/recognizer"
	"github.com/emmett/sphinxvox/internal/stt"
)

// RecognizerService implements RecognizerServer over a controller
type RecognizerService struct {
	ctrl   control.Controller
	logger *logrus.Entry
}

// NewRecognizerService creates the service
func NewRecognizerService(ctrl control.Controller, logger *logrus.Entry) *RecognizerService {
	return &RecognizerService{ctrl: ctrl, logger: logger}
}

func (s *RecognizerService) StartListening(_ context.Context, in *structpb.Struct) (*wrapperspb.BoolValue, error) {
	fields := in.GetFields()
	search := fields["search"].GetStringValue()
	timeoutMs := int(fields["timeout_ms"].GetNumberValue())

	started, err := s.ctrl.StartListening(search, timeoutMs)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(started), nil
}

func (s *RecognizerService) Stop(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	return wrapperspb.Bool(s.ctrl.Stop()), nil
}

func (s *RecognizerService) Cancel(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	return wrapperspb.Bool(s.ctrl.Cancel()), nil
}

func (s *RecognizerService) SetSearch(_ context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if in.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "search name is required")
	}
	if err := s.ctrl.SetSearch(in.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *RecognizerService) Status(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	st := s.ctrl.Status()
	out, err := structpb.NewStruct(map[string]any{
		"session_id":  st.SessionID,
		"state":       st.State,
		"listening":   st.Listening,
		"search":      st.Search,
		"sample_rate": st.SampleRate,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Events streams every session event until the client goes away
func (s *RecognizerService) Events(_ *emptypb.Empty, stream Recognizer_EventsServer) error {
	events, unsubscribe := s.ctrl.Subscribe(32)
	defer unsubscribe()

	ctx := stream.Context()
	s.logger.Debug("Event stream opened")
	defer s.logger.Debug("Event stream closed")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			msg, err := EventStruct(ev)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// EventStruct converts an event to its JSON shape as a Struct
func EventStruct(ev recognizer.Event) (*structpb.Struct, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, recognizer.ErrListening):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, recognizer.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, stt.ErrUnknownSearch):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
