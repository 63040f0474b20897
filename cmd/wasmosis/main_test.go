package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wippyai/wasmosis/kernel"
	"github.com/wippyai/wasmosis/runtime"
)

func TestParseGuests(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []guestFile
		wantErr bool
	}{
		{
			name: "basename",
			args: []string{"build/echo.wasm"},
			want: []guestFile{{name: "echo", path: "build/echo.wasm"}},
		},
		{
			name: "explicit name",
			args: []string{"a=echo.wasm", "b=echo.wasm"},
			want: []guestFile{{name: "a", path: "echo.wasm"}, {name: "b", path: "echo.wasm"}},
		},
		{name: "duplicate", args: []string{"echo.wasm", "x/echo.wasm"}, wantErr: true},
		{name: "empty name", args: []string{"=echo.wasm"}, wantErr: true},
		{name: "empty path", args: []string{"echo="}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseGuests(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestConsole(t *testing.T) {
	ctx := context.Background()
	rt, err := runtime.New(ctx, &runtime.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	defer rt.Close(ctx)

	var out bytes.Buffer
	c, err := newConsole(rt, &out)
	require.NoError(t, err)

	client, err := rt.NewNative("client", 64)
	require.NoError(t, err)
	port, err := c.grant(client)
	require.NoError(t, err)

	msg := []byte("hello from client")
	require.NoError(t, client.Memory().Write(10, msg))
	buf, err := client.SendBufCreate(10, uint32(len(msg)))
	require.NoError(t, err)

	ret, err := client.Call1(ctx, port, consoleWrite, buf)
	require.NoError(t, err)
	n, err := client.UnboxU32(ret)
	require.NoError(t, err)
	require.Equal(t, uint32(len(msg)), n)

	box, err := client.BoxF64(2.5)
	require.NoError(t, err)
	ret, err = client.Call1(ctx, port, consolePrint, box)
	require.NoError(t, err)
	require.Equal(t, kernel.Null, ret)

	require.Equal(t, "[client] hello from client\n[client] f64:2.5\n", out.String())

	_, err = client.Call1(ctx, port, consoleWrite, box)
	require.Error(t, err, "a box is not a sendbuf")
}
