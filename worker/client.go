package worker

import (
	"github.com/mohitkumar/mediaflow/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type client struct {
	serverUrl string
	conn      *grpc.ClientConn
	api       *rpc.WorkerServiceClient
}

func newClient(serverAddress string, opts ...grpc.DialOption) (*client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.Dial(serverAddress, opts...)
	if err != nil {
		return nil, err
	}
	return &client{
		serverUrl: serverAddress,
		conn:      conn,
		api:       rpc.NewWorkerServiceClient(conn),
	}, nil
}

func (c *client) Close() error {
	return c.conn.Close()
}
