// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/authbridge/sandbox"
)

// BootstrapFD is the descriptor number of the bootstrap socket in a
// module process.
const BootstrapFD = 3

// exitGrace is how long a module process gets to exit on its own after
// its port closes before it is killed.
const exitGrace = 2 * time.Second

const maxBootstrapFrame = 512

func (o *Opener) openProcess(ctx context.Context, origin *url.URL, logger *slog.Logger) (*Channel, error) {
	argv, err := o.moduleCommand(origin)
	if err != nil {
		return nil, err
	}

	// fds[0] goes to the module as fd 3; fds[1] stays with the host.
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("creating bootstrap socketpair: %w", err)
	}
	moduleFile := os.NewFile(uintptr(fds[0]), "module-bootstrap")
	bootstrap, err := fileUnixConn(os.NewFile(uintptr(fds[1]), "host-bootstrap"))
	if err != nil {
		moduleFile.Close()
		return nil, err
	}
	defer bootstrap.Close()

	command := exec.Command(argv[0], argv[1:]...)
	command.ExtraFiles = []*os.File{moduleFile}
	command.Stderr = o.Stderr
	if o.Sandbox == nil {
		command.Env = o.Env
	}
	if err := command.Start(); err != nil {
		moduleFile.Close()
		return nil, fmt.Errorf("starting module %s: %w", argv[0], err)
	}
	// The child holds its own copy.
	moduleFile.Close()
	logger.Debug("module process started", "pid", command.Process.Pid)

	exited := make(chan struct{})
	go func() {
		_ = command.Wait()
		close(exited)
	}()
	kill := func() {
		_ = command.Process.Kill()
		<-exited
	}
	destroy := func() error {
		select {
		case <-exited:
			return nil
		case <-o.clock().After(exitGrace):
		}
		logger.Warn("module did not exit after close, killing", "pid", command.Process.Pid)
		kill()
		return nil
	}

	receive := func() ([]byte, error) {
		buffer := make([]byte, maxBootstrapFrame)
		n, err := bootstrap.Read(buffer)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, errors.New("module exited before ready")
		}
		return buffer[:n], nil
	}
	if err := o.awaitReady(ctx, receive, func() { bootstrap.Close(); kill() }); err != nil {
		kill()
		return nil, err
	}

	port, err := sendStreamEndpoint(bootstrap, logger)
	if err != nil {
		kill()
		return nil, err
	}
	return &Channel{port: port, destroy: destroy}, nil
}

// moduleCommand builds argv for an exec:// origin, wrapped in bwrap
// when a sandbox is configured.
func (o *Opener) moduleCommand(origin *url.URL) ([]string, error) {
	if origin.Path == "" {
		return nil, errors.New("exec origin has no module path")
	}
	argv := []string{origin.Path, "--bootstrap-fd", strconv.Itoa(BootstrapFD)}
	argv = append(argv, origin.Query()["arg"]...)
	if o.Sandbox == nil {
		return argv, nil
	}

	bwrap, err := sandbox.BwrapPath(o.Sandbox.BwrapPath)
	if err != nil {
		return nil, fmt.Errorf("sandboxing module: %w", err)
	}
	wrapped, err := sandbox.NewBwrapBuilder().Build(&sandbox.BwrapOptions{
		Command:    argv,
		ExtraBinds: o.Sandbox.ExtraBinds,
		Env:        o.Sandbox.Env,
	})
	if err != nil {
		return nil, fmt.Errorf("sandboxing module: %w", err)
	}
	return append([]string{bwrap}, wrapped...), nil
}

// sendStreamEndpoint creates the data socketpair, passes the module's
// end in the init_port frame, and returns the host's end as a Port.
func sendStreamEndpoint(bootstrap *net.UnixConn, logger *slog.Logger) (Port, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("creating data socketpair: %w", err)
	}
	moduleEnd := os.NewFile(uintptr(fds[0]), "module-data")
	defer moduleEnd.Close()

	hostConn, err := net.FileConn(os.NewFile(uintptr(fds[1]), "host-data"))
	if err != nil {
		return nil, fmt.Errorf("converting data socket: %w", err)
	}

	rights := unix.UnixRights(int(moduleEnd.Fd()))
	if _, _, err := bootstrap.WriteMsgUnix(encodeFrame(frameInitPort), rights, nil); err != nil {
		hostConn.Close()
		return nil, fmt.Errorf("sending init_port: %w", err)
	}
	return newConnPort(hostConn, logger), nil
}

// ServeFD is the module side of an exec:// channel. fd is the
// inherited bootstrap socket. ServeFD sends ready, receives the data
// socket from init_port, and runs serve over it until it returns.
func ServeFD(ctx context.Context, fd int, serve ServeFunc, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	bootstrap, err := fileUnixConn(os.NewFile(uintptr(fd), "bootstrap"))
	if err != nil {
		return err
	}
	defer bootstrap.Close()

	if _, err := bootstrap.Write(encodeFrame(frameReady)); err != nil {
		return fmt.Errorf("sending ready: %w", err)
	}

	// The host may never answer; closing the socket unblocks the read.
	stop := context.AfterFunc(ctx, func() { bootstrap.Close() })
	defer stop()

	buffer := make([]byte, maxBootstrapFrame)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := bootstrap.ReadMsgUnix(buffer, oob)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("waiting for init_port: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("waiting for init_port: %w", io.EOF)
	}
	if err := expectFrame(buffer[:n], frameInitPort); err != nil {
		return err
	}

	dataFile, err := receivedFile(oob[:oobn])
	if err != nil {
		return err
	}
	conn, err := net.FileConn(dataFile)
	dataFile.Close()
	if err != nil {
		return fmt.Errorf("converting data socket: %w", err)
	}

	port := newConnPort(conn, logger)
	defer port.Close()
	logger.Debug("module channel established")
	return serve(ctx, port)
}

// receivedFile extracts exactly one descriptor from SCM_RIGHTS data.
func receivedFile(oob []byte) (*os.File, error) {
	messages, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("parsing init_port control message: %w", err)
	}
	if len(messages) != 1 {
		return nil, fmt.Errorf("init_port carried %d control messages, want 1", len(messages))
	}
	fds, err := unix.ParseUnixRights(&messages[0])
	if err != nil {
		return nil, fmt.Errorf("parsing init_port rights: %w", err)
	}
	if len(fds) != 1 {
		for _, fd := range fds {
			unix.Close(fd)
		}
		return nil, fmt.Errorf("init_port carried %d descriptors, want 1", len(fds))
	}
	return os.NewFile(uintptr(fds[0]), "module-data"), nil
}

// fileUnixConn converts file to a *net.UnixConn. net.FileConn dups the
// descriptor, so file is closed here.
func fileUnixConn(file *os.File) (*net.UnixConn, error) {
	conn, err := net.FileConn(file)
	file.Close()
	if err != nil {
		return nil, fmt.Errorf("converting %s to a connection: %w", file.Name(), err)
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("%s is not a unix socket", file.Name())
	}
	return unixConn, nil
}
