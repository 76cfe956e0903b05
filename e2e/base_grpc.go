package e2e

import (
	"context"
	"dm-core/auth"
	"dm-core/domain"
	dmgrpc "dm-core/grpc"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

type BaseGrpcSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseGrpcSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.Addr == "" || s.Config.JwtSecret == "" {
		s.T().Skip("DM_ADDR and JWT_SECRET are required for end to end tests")
	}
}

// Client dials the server as user, logging every unary call.
func (s *BaseGrpcSuite) Client(name string, user domain.User) *dmgrpc.Client {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	token, err := auth.NewIssuer(s.Config.JwtSecret, time.Hour).Generate(user)
	s.Require().NoError(err)

	client, err := dmgrpc.Dial(s.Config.Addr, token,
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			if s.Config.DebugJSON {
				fmt.Fprintf(&logBuilder, "\nREQUEST:\n%s", indent(req))
				if err != nil {
					fmt.Fprintln(&logBuilder, "\nERROR:", err)
				} else {
					fmt.Fprintf(&logBuilder, "\nRESPONSE:\n%s", indent(reply))
				}
			}
			s.T().Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.Addr)
	s.T().Cleanup(func() { _ = client.Close() })
	return client
}

func indent(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(out)
}
