package processor

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"time"

	"chatreel/internal/pkg/errors"
	"chatreel/internal/ports"
)

// OutputHandler uploads a finished render to the artifact store.
type OutputHandler struct {
	sp  ports.StorageProvider
	now func() time.Time
}

func NewOutputHandler(sp ports.StorageProvider) *OutputHandler {
	return &OutputHandler{sp: sp, now: time.Now}
}

type UploadResult struct {
	ObjectName string
	Size       int64
}

// Upload streams localPath to renders/<jobId>/video_<unix>.mp4. A missing or
// empty file is an upload failure; a job never completes without a readable
// object.
func (oh *OutputHandler) Upload(ctx context.Context, jobID, localPath string) (UploadResult, error) {
	st, err := os.Stat(localPath)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return UploadResult{}, errors.New(errors.CodeUploadFailed, "render produced no output file")
		}
		return UploadResult{}, errors.WrapWithCode(err, errors.CodeUploadFailed, "processor.upload", "stat output")
	}
	if st.Size() == 0 {
		return UploadResult{}, errors.New(errors.CodeUploadFailed, "render produced an empty output file")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return UploadResult{}, errors.WrapWithCode(err, errors.CodeUploadFailed, "processor.upload", "open output")
	}
	defer f.Close()

	out, err := oh.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   ObjectName(jobID, oh.now()),
		ContentType: "video/mp4",
		Reader:      f,
		Size:        st.Size(),
	})
	if err != nil {
		return UploadResult{}, errors.WrapWithCode(err, errors.CodeUploadFailed, "processor.upload", "upload to "+oh.sp.Provider()+" failed")
	}
	if out.ObjectKey == "" {
		return UploadResult{}, errors.New(errors.CodeUploadFailed, "storage returned no object key")
	}
	size := out.Size
	if size == 0 {
		size = st.Size()
	}
	return UploadResult{ObjectName: out.ObjectKey, Size: size}, nil
}
