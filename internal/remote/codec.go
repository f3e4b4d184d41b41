package remote

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/forest-guardian/index-composite/internal/export"
	"github.com/forest-guardian/index-composite/internal/geometry"
)

type statusRequest struct {
	ID string `json:"id"`
}

// toStruct carries any JSON-encodable value as a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to convert message: %w", err)
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to convert message: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, export.ErrJobNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, export.ErrInvalidTask),
		errors.Is(err, geometry.ErrInvalidGeometry),
		errors.Is(err, geometry.ErrInvalidBuffer):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", export.ErrJobNotFound, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", export.ErrInvalidTask, st.Message())
	default:
		return errors.New(st.Message())
	}
}
