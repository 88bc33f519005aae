package main

// IMPORT REQUIRED PACKAGES.

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edwinhayes/rosviz/msgs"
	"github.com/edwinhayes/rosviz/relay"
	"github.com/edwinhayes/rosviz/viz"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// DEFINE PRIVATE STRUCTURES.

// source produces the frame of one synthetic topic at tick n.
type source struct {
	topic    string
	typeName string
	frame    func(n int, now time.Time) msgs.Message
}

// DEFINE PRIVATE GLOBALS.

const (
	cameraWidth  = 64
	cameraHeight = 48
	lidarBeams   = 360
)

var sources = []source{
	{"camera", msgs.CameraFrameType, cameraFrame},
	{"imu", msgs.ImuFrameType, imuFrame},
	{"lidar", msgs.LidarFrameType, lidarFrame},
	{"pose", msgs.PosefWithTimestampType, poseFrame},
}

// DEFINE PRIVATE STATIC FUNCTIONS.

// cameraFrame is an RGB gradient that scrolls one column per tick.
func cameraFrame(n int, now time.Time) msgs.Message {
	data := make([]byte, 0, cameraWidth*cameraHeight*3)
	for y := 0; y < cameraHeight; y++ {
		for x := 0; x < cameraWidth; x++ {
			data = append(data, byte((x+n)*4), byte(y*5), byte(n))
		}
	}
	m := &msgs.CameraFrame{Data: data, Timestamp: now.UnixMicro()}
	m.CameraFormat.Size = msgs.Sizei{Width: cameraWidth, Height: cameraHeight}
	m.CameraFormat.PixelFormat = msgs.PixelFormatRGB
	return m
}

func imuFrame(n int, now time.Time) msgs.Message {
	half := float64(n) * 0.01
	m := &msgs.ImuFrame{Timestamp: now.UnixMicro()}
	m.Orientation = msgs.Quaternionf{W: float32(math.Cos(half)), Z: float32(math.Sin(half))}
	m.AngularVelocity.Z = 0.02
	m.LinearAcceleration.Z = 9.81
	return m
}

func lidarFrame(n int, now time.Time) msgs.Message {
	ranges := make([]float32, lidarBeams)
	for i := range ranges {
		ranges[i] = 2 + float32(math.Sin(float64(i+n)*math.Pi/45))
	}
	return &msgs.LidarFrame{
		AngleStart: 0,
		AngleEnd:   2 * math.Pi,
		AngleDelta: 2 * math.Pi / lidarBeams,
		RangeMin:   0.1,
		RangeMax:   10,
		Ranges:     msgs.PackFloat32s(ranges),
		Timestamp:  now.UnixMicro(),
	}
}

func poseFrame(n int, now time.Time) msgs.Message {
	angle := float64(n) * 0.02
	m := &msgs.PosefWithTimestamp{Timestamp: now.UnixMicro()}
	m.Pose.Position = msgs.Pointf{X: float32(3 * math.Cos(angle)), Y: float32(3 * math.Sin(angle))}
	m.Pose.Theta = float32(angle + math.Pi/2)
	return m
}

func publish(ctx context.Context, s *relay.Server, rate float64, logger *logrus.Entry) error {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()
	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			for _, src := range sources {
				sent, err := s.Publish(src.topic, src.frame(n, now).Marshal())
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return errors.Wrapf(err, "publish %s", src.topic)
				}
				logger.WithField("topic", src.topic).Debugf("Frame %d sent to %d subscribers", n, sent)
			}
		}
	}
}

func run() error {
	flags := pflag.NewFlagSet("vizrelay", pflag.ContinueOnError)
	listen := flags.String("listen", ":8082", "control channel listen address")
	host := flags.String("host", "", "host advertised in topic endpoints (default from VIZ_HOSTNAME, VIZ_IP or the hostname)")
	rate := flags.Float64("rate", 10, "frames per second published on every topic")
	level := flags.String("log-level", "info", "log level")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *rate <= 0 {
		return errors.Errorf("rate must be positive, got %v", *rate)
	}
	lvl, err := logrus.ParseLevel(*level)
	if err != nil {
		return err
	}
	base := viz.DefaultLogger()
	base.SetLevel(lvl)
	logger := logrus.NewEntry(base)

	s := relay.NewServer(relay.Options{Host: *host, Logger: logger})
	defer s.Close()
	for _, src := range sources {
		if _, err := s.AddTopic(src.topic, src.typeName); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{Addr: *listen, Handler: s}
	g.Go(func() error {
		logger.Infof("Control channel on %s", *listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "control channel")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down...")
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return publish(ctx, s, *rate, logger)
	})
	return g.Wait()
}

func main() {
	if err := run(); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ALL DONE.
