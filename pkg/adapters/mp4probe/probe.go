// Package mp4probe reads video stream properties from MP4 containers without decoding.
package mp4probe

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/framelab/pkg/ports"
)

// ErrNoVideoTrack is returned when the container has no video track.
var ErrNoVideoTrack = errors.New("mp4probe: no video track found")

// Codec names reported in ports.VideoInfo.Codec.
const (
	CodecH264    = "h264"
	CodecHEVC    = "hevc"
	CodecAV1     = "av1"
	CodecMPEG4   = "mpeg4"
	CodecUnknown = "unknown"
)

// ProbeFile reads stream properties from the MP4 file at path.
func ProbeFile(path string) (ports.VideoInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ports.VideoInfo{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return Probe(f)
}

// Probe reads stream properties from an MP4 container.
func Probe(reader io.ReadSeeker) (ports.VideoInfo, error) {
	mp4File, err := mp4.DecodeFile(reader)
	if err != nil {
		return ports.VideoInfo{}, fmt.Errorf("decode mp4: %w", err)
	}
	if mp4File.IsFragmented() {
		return probeFragmented(mp4File)
	}
	return probeProgressive(mp4File)
}

func probeProgressive(mp4File *mp4.File) (ports.VideoInfo, error) {
	if mp4File.Moov == nil {
		return ports.VideoInfo{}, fmt.Errorf("%w: no moov box", ErrNoVideoTrack)
	}
	trak := videoTrack(mp4File.Moov.Traks)
	if trak == nil {
		return ports.VideoInfo{}, ErrNoVideoTrack
	}

	info := trackInfo(trak)
	stbl := trak.Mdia.Minf.Stbl
	if stbl.Stsz != nil {
		info.FrameCount = int(stbl.Stsz.SampleNumber)
	}
	if mdhd := trak.Mdia.Mdhd; mdhd != nil && mdhd.Timescale > 0 {
		info.DurationMs = int(mdhd.Duration * 1000 / uint64(mdhd.Timescale))
	}
	info.FPS = rate(info.FrameCount, info.DurationMs)
	return info, nil
}

func probeFragmented(mp4File *mp4.File) (ports.VideoInfo, error) {
	if mp4File.Init == nil || mp4File.Init.Moov == nil {
		return ports.VideoInfo{}, fmt.Errorf("%w: no init segment", ErrNoVideoTrack)
	}
	moov := mp4File.Init.Moov
	trak := videoTrack(moov.Traks)
	if trak == nil {
		return ports.VideoInfo{}, ErrNoVideoTrack
	}
	info := trackInfo(trak)
	trackID := trak.Tkhd.TrackID

	var trex *mp4.TrexBox
	if moov.Mvex != nil {
		for _, t := range moov.Mvex.Trexs {
			if t.TrackID == trackID {
				trex = t
				break
			}
		}
	}

	timescale := uint64(1000)
	if trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale > 0 {
		timescale = uint64(trak.Mdia.Mdhd.Timescale)
	}

	var total uint64
	for _, seg := range mp4File.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID != trackID {
					continue
				}
				samples, err := frag.GetFullSamples(trex)
				if err != nil {
					return ports.VideoInfo{}, fmt.Errorf("get samples: %w", err)
				}
				for _, sample := range samples {
					total += uint64(sample.Dur)
				}
				info.FrameCount += len(samples)
			}
		}
	}

	info.DurationMs = int(total * 1000 / timescale)
	info.FPS = rate(info.FrameCount, info.DurationMs)
	return info, nil
}

func videoTrack(traks []*mp4.TrakBox) *mp4.TrakBox {
	for _, trak := range traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
			continue
		}
		if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
			continue
		}
		return trak
	}
	return nil
}

// trackInfo reads the codec and picture size from the sample description.
func trackInfo(trak *mp4.TrakBox) ports.VideoInfo {
	info := ports.VideoInfo{Codec: CodecUnknown}
	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		if codec := CodecName(child.Type()); codec != CodecUnknown {
			info.Codec = codec
		}
		if vse, ok := child.(*mp4.VisualSampleEntryBox); ok {
			info.Width = int(vse.Width)
			info.Height = int(vse.Height)
			break
		}
	}
	if (info.Width == 0 || info.Height == 0) && trak.Tkhd != nil {
		info.Width = int(trak.Tkhd.Width >> 16)
		info.Height = int(trak.Tkhd.Height >> 16)
	}
	return info
}

// CodecName maps an MP4 sample entry type to a codec name.
func CodecName(sampleEntry string) string {
	switch sampleEntry {
	case "avc1", "avc3":
		return CodecH264
	case "hvc1", "hev1":
		return CodecHEVC
	case "av01":
		return CodecAV1
	case "mp4v":
		return CodecMPEG4
	default:
		return CodecUnknown
	}
}

func rate(frames, durationMs int) float64 {
	if frames == 0 || durationMs <= 0 {
		return 0
	}
	return float64(frames) * 1000 / float64(durationMs)
}
