//go:build linux

// Package v4l2 implements capture.VideoSource against a real Linux
// multi-plane V4L2 capture device (e.g. a CSI camera exposing separate luma
// and chroma planes for an NV12-family format), using mmap'd kernel buffers
// and the VIDIOC_* ioctl family.
package v4l2

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/haldane-systems/avrec/internal/capture"
)

// V4L2 constants used by this binding. Values are taken from
// include/uapi/linux/videodev2.h; only the multi-plane capture subset is
// implemented.
const (
	bufTypeVideoCaptureMPlane = 9          // V4L2_BUF_TYPE_VIDEO_CAPTURE_MPLANE
	memoryMMap                = 1          // V4L2_MEMORY_MMAP
	fieldNone                 = 1          // V4L2_FIELD_NONE
	pixFmtNV12                = 0x3231564E // 'NV12'
	capVideoCaptureMPlane     = 0x00001000
	capDeviceCaps             = 0x80000000
	maxPlanes                 = 8
)

const (
	iocNRBits    = 8
	iocTypeBits  = 8
	iocSizeBits  = 14
	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return (dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift)
}

func iow(typ, nr, size uintptr) uintptr { return ioc(iocWrite, typ, nr, size) }
func ior(typ, nr, size uintptr) uintptr { return ioc(iocRead, typ, nr, size) }
func iowr(typ, nr, size uintptr) uintptr { return ioc(iocRead|iocWrite, typ, nr, size) }

// v4l2Capability mirrors struct v4l2_capability.
type v4l2Capability struct {
	Driver       [16]byte
	Card         [32]byte
	BusInfo      [32]byte
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
	Reserved     [3]uint32
}

// v4l2PlanePixFormat mirrors struct v4l2_plane_pix_format: per-plane stride
// and sizeimage within a multi-plane format descriptor.
type v4l2PlanePixFormat struct {
	SizeImage    uint32
	BytesPerLine uint32
	Reserved     [6]uint16
}

// v4l2PixFormatMPlane mirrors struct v4l2_pix_format_mplane.
type v4l2PixFormatMPlane struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	Colorspace   uint32
	PlaneFmt     [maxPlanes]v4l2PlanePixFormat
	NumPlanes    uint8
	Flags        uint8
	YcbcrEnc     uint8
	Quantization uint8
	XferFunc     uint8
	Reserved     [7]uint8
}

// v4l2Format mirrors struct v4l2_format with the mplane member laid directly
// over the format union. The trailing pad brings the overlay up to the
// union's full raw_data[200] size so that unsafe.Sizeof (and the ioctl
// request numbers derived from it) agree with the kernel.
type v4l2Format struct {
	Type uint32
	_    [4]byte
	mp   v4l2PixFormatMPlane
	_    [8]byte
}

// v4l2RequestBuffers mirrors struct v4l2_requestbuffers.
type v4l2RequestBuffers struct {
	Count    uint32
	Type     uint32
	Memory   uint32
	Reserved [2]uint32
}

// v4l2Plane mirrors struct v4l2_plane for the MMAP memory type. MemOffset is
// the mem_offset member of the m union, which is as wide as an unsigned long,
// so it is followed by padding up to that width.
type v4l2Plane struct {
	BytesUsed  uint32
	Length     uint32
	MemOffset  uint32
	_          [unsafe.Sizeof(uintptr(0)) - 4]byte
	DataOffset uint32
	Reserved   [11]uint32
}

// v4l2Timecode mirrors struct v4l2_timecode.
type v4l2Timecode struct {
	Type     uint32
	Flags    uint32
	Frames   uint8
	Seconds  uint8
	Minutes  uint8
	Hours    uint8
	Userbits [4]uint8
}

// v4l2Buffer mirrors struct v4l2_buffer with the multi-plane union member
// (a pointer to an out-of-line v4l2_plane array) instead of the single-plane
// offset/userptr/fd union used by V4L2_BUF_TYPE_VIDEO_CAPTURE.
type v4l2Buffer struct {
	Index     uint32
	Type      uint32
	BytesUsed uint32
	Flags     uint32
	Field     uint32
	Timestamp unix.Timeval
	Timecode  v4l2Timecode
	Sequence  uint32
	Memory    uint32
	Planes    uintptr
	Length    uint32
	Reserved2 uint32
	Request   int32
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

var (
	vidiocQuerycap  = ior(uintptr('V'), 0, unsafe.Sizeof(v4l2Capability{}))
	vidiocSFmt      = iowr(uintptr('V'), 5, unsafe.Sizeof(v4l2Format{}))
	vidiocReqbufs   = iowr(uintptr('V'), 8, unsafe.Sizeof(v4l2RequestBuffers{}))
	vidiocQuerybuf  = iowr(uintptr('V'), 9, unsafe.Sizeof(v4l2Buffer{}))
	vidiocQBuf      = iowr(uintptr('V'), 15, unsafe.Sizeof(v4l2Buffer{}))
	vidiocDQBuf     = iowr(uintptr('V'), 17, unsafe.Sizeof(v4l2Buffer{}))
	vidiocStreamOn  = iow(uintptr('V'), 18, unsafe.Sizeof(uint32(0)))
	vidiocStreamOff = iow(uintptr('V'), 19, unsafe.Sizeof(uint32(0)))
)

const bufferCount = 4

type mappedBuffer struct {
	planes [][]byte
	v4l2p  []v4l2Plane
}

// Source implements capture.VideoSource against a real multi-plane V4L2
// camera device.
type Source struct {
	fd        int
	fdOpen    bool
	buffers   []mappedBuffer
	width     int
	height    int
	stride    int
	streaming bool
}

// Open opens device, negotiates an NV12 multi-plane format at width x
// height, and requests and maps bufferCount kernel buffers.
func (s *Source) Open(device string, width, height int) error {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("v4l2: open %s: %w", device, err)
	}
	s.fd = fd
	s.fdOpen = true

	var caps v4l2Capability
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&caps)); err != nil {
		s.Close()
		return fmt.Errorf("v4l2: VIDIOC_QUERYCAP: %w", err)
	}
	capsToCheck := caps.Capabilities
	if capsToCheck&capDeviceCaps != 0 {
		capsToCheck = caps.DeviceCaps
	}
	if capsToCheck&capVideoCaptureMPlane == 0 {
		s.Close()
		return fmt.Errorf("v4l2: device does not support multi-plane capture")
	}

	var format v4l2Format
	format.Type = bufTypeVideoCaptureMPlane
	format.mp.Width = uint32(width)
	format.mp.Height = uint32(height)
	format.mp.PixelFormat = pixFmtNV12
	format.mp.Field = fieldNone
	format.mp.NumPlanes = 2
	if err := ioctl(fd, vidiocSFmt, unsafe.Pointer(&format)); err != nil {
		s.Close()
		return fmt.Errorf("v4l2: VIDIOC_S_FMT: %w", err)
	}

	s.width = int(format.mp.Width)
	s.height = int(format.mp.Height)
	s.stride = int(format.mp.PlaneFmt[0].BytesPerLine)
	if s.stride == 0 {
		s.stride = s.width
	}

	req := v4l2RequestBuffers{Count: bufferCount, Type: bufTypeVideoCaptureMPlane, Memory: memoryMMap}
	if err := ioctl(fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		s.Close()
		return fmt.Errorf("v4l2: VIDIOC_REQBUFS: %w", err)
	}

	for i := uint32(0); i < req.Count; i++ {
		planes := make([]v4l2Plane, 2)
		buf := v4l2Buffer{
			Index:  i,
			Type:   bufTypeVideoCaptureMPlane,
			Memory: memoryMMap,
			Planes: uintptr(unsafe.Pointer(&planes[0])),
			Length: 2,
		}
		if err := ioctl(fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
			s.Close()
			return fmt.Errorf("v4l2: VIDIOC_QUERYBUF index %d: %w", i, err)
		}

		mb := mappedBuffer{v4l2p: planes}
		for p := range planes {
			data, err := unix.Mmap(fd, int64(planes[p].MemOffset), int(planes[p].Length),
				unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
			if err != nil {
				s.Close()
				return fmt.Errorf("v4l2: mmap plane %d of buffer %d: %w", p, i, err)
			}
			mb.planes = append(mb.planes, data)
		}
		s.buffers = append(s.buffers, mb)

		if err := s.queueBuffer(i); err != nil {
			s.Close()
			return err
		}
	}

	return nil
}

func (s *Source) queueBuffer(index uint32) error {
	planes := s.buffers[index].v4l2p
	buf := v4l2Buffer{
		Index:  index,
		Type:   bufTypeVideoCaptureMPlane,
		Memory: memoryMMap,
		Planes: uintptr(unsafe.Pointer(&planes[0])),
		Length: uint32(len(planes)),
	}
	if err := ioctl(s.fd, vidiocQBuf, unsafe.Pointer(&buf)); err != nil {
		return fmt.Errorf("v4l2: VIDIOC_QBUF index %d: %w", index, err)
	}
	return nil
}

// Start begins streaming.
func (s *Source) Start() error {
	bufType := uint32(bufTypeVideoCaptureMPlane)
	if err := ioctl(s.fd, vidiocStreamOn, unsafe.Pointer(&bufType)); err != nil {
		return fmt.Errorf("v4l2: VIDIOC_STREAMON: %w", err)
	}
	s.streaming = true
	return nil
}

// DequeueOne dequeues one completed buffer. The device is non-blocking, so
// an EAGAIN from the kernel is reported as DequeueNoData rather than an
// error.
func (s *Source) DequeueOne() (capture.VideoBuffer, uint64, capture.DequeueStatus, error) {
	planes := make([]v4l2Plane, 2)
	buf := v4l2Buffer{
		Type:   bufTypeVideoCaptureMPlane,
		Memory: memoryMMap,
		Planes: uintptr(unsafe.Pointer(&planes[0])),
		Length: 2,
	}
	err := ioctl(s.fd, vidiocDQBuf, unsafe.Pointer(&buf))
	if err == unix.EAGAIN {
		return capture.VideoBuffer{}, 0, capture.DequeueNoData, nil
	}
	if err != nil {
		return capture.VideoBuffer{}, 0, capture.DequeueFatal, fmt.Errorf("v4l2: VIDIOC_DQBUF: %w", err)
	}

	mb := s.buffers[buf.Index]
	out := capture.VideoBuffer{
		Planes: [][]byte{
			mb.planes[0][:planes[0].BytesUsed],
			mb.planes[1][:planes[1].BytesUsed],
		},
		Width:  s.width,
		Height: s.height,
		Stride: s.stride,
	}
	return out, uint64(buf.Sequence), capture.DequeueGotFrame, nil
}

// Requeue finds which kernel buffer backs buf (by plane slice identity) and
// returns it to the driver's incoming queue.
func (s *Source) Requeue(buf capture.VideoBuffer) error {
	for i, mb := range s.buffers {
		if len(mb.planes) > 0 && len(buf.Planes) > 0 && len(mb.planes[0]) > 0 && len(buf.Planes[0]) > 0 &&
			&mb.planes[0][0] == &buf.Planes[0][0] {
			return s.queueBuffer(uint32(i))
		}
	}
	return fmt.Errorf("v4l2: requeue: buffer not recognized")
}

// Close stops streaming (if started), unmaps every buffer, and closes the
// device file descriptor. Safe to call multiple times.
func (s *Source) Close() error {
	if !s.fdOpen {
		return nil
	}
	if s.streaming {
		bufType := uint32(bufTypeVideoCaptureMPlane)
		_ = ioctl(s.fd, vidiocStreamOff, unsafe.Pointer(&bufType))
		s.streaming = false
	}
	for _, mb := range s.buffers {
		for _, p := range mb.planes {
			_ = unix.Munmap(p)
		}
	}
	s.buffers = nil
	err := unix.Close(s.fd)
	s.fdOpen = false
	return err
}
