// Package securecmd implements the "secure" command.
package securecmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-as4-wssec/internal/cmdutil"
	"github.com/sirosfoundation/go-as4-wssec/internal/config"
	"github.com/sirosfoundation/go-as4-wssec/internal/keystore"
	"github.com/sirosfoundation/go-as4-wssec/pkg/compression"
	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
	as4mime "github.com/sirosfoundation/go-as4-wssec/pkg/mime"
	"github.com/sirosfoundation/go-as4-wssec/pkg/msh"
	"github.com/sirosfoundation/go-as4-wssec/pkg/pmode"
	"github.com/sirosfoundation/go-as4-wssec/pkg/security"
	"github.com/sirosfoundation/go-as4-wssec/pkg/wssec"
)

const (
	inFlagName      = "in"
	inEnvKey        = "AS4WSSEC_IN"
	inFlagShorthand = "i"
	inFlagUsage     = "Path to the SOAP envelope to secure, or to a multipart/related MIME entity carrying it." +
		" Alternatively, this can be set with the following environment variable: " + inEnvKey

	outFlagName      = "out"
	outEnvKey        = "AS4WSSEC_OUT"
	outFlagShorthand = "o"
	outFlagUsage     = "Path the secured envelope is written to. Standard output is used when not set." +
		" Alternatively, this can be set with the following environment variable: " + outEnvKey

	pmodeFlagName      = "pmode"
	pmodeEnvKey        = "AS4WSSEC_PMODE"
	pmodeFlagShorthand = "p"
	pmodeFlagUsage     = "Path to a P-Mode YAML file, or the id of a P-Mode in the configured P-Mode directory." +
		" Alternatively, this can be set with the following environment variable: " + pmodeEnvKey

	legFlagName  = "leg"
	legEnvKey    = "AS4WSSEC_LEG"
	legFlagUsage = "Label of the P-Mode leg whose security applies." +
		" Alternatively, this can be set with the following environment variable: " + legEnvKey

	attachmentFlagName      = "attachment"
	attachmentFlagShorthand = "a"
	attachmentFlagUsage     = "Path to an attachment carried with the envelope; the file name is used as Content-ID." +
		" Can be repeated."

	compressFlagName  = "compress"
	compressFlagUsage = "GZIP compress the payloads referenced from eb:PayloadInfo before securing."

	mimeFlagName  = "mime"
	mimeFlagUsage = "Write the secured envelope and attachments as one multipart/related MIME entity."

	attachmentDirFlagName  = "attachment-dir"
	attachmentDirEnvKey    = "AS4WSSEC_ATTACHMENT_DIR"
	attachmentDirFlagUsage = "Directory the processed (possibly encrypted) attachments are written to." +
		" Alternatively, this can be set with the following environment variable: " + attachmentDirEnvKey
)

type secureParameters struct {
	cfg           *config.Config
	logger        *slog.Logger
	inPath        string
	outPath       string
	pmodeRef      string
	leg           string
	attachments   []string
	attachmentDir string
	compress      bool
	mimeOutput    bool
	stdout        io.Writer
}

// GetSecureCmd returns the Cobra secure command.
func GetSecureCmd() *cobra.Command {
	secureCmd := createSecureCmd()

	createFlags(secureCmd)

	return secureCmd
}

func createSecureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "secure",
		Short: "Add WS-Security headers to an envelope",
		Long: "Add the role and default WS-Security headers described by a P-Mode to a SOAP envelope." +
			" Keys are resolved from the configured keystore.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdutil.LoadConfig(cmd)
			if err != nil {
				return err
			}

			logger, err := cmdutil.NewLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			inPath, err := cmdutil.GetUserSetVar(cmd, inFlagName, inEnvKey, false)
			if err != nil {
				return err
			}

			outPath, err := cmdutil.GetUserSetVar(cmd, outFlagName, outEnvKey, true)
			if err != nil {
				return err
			}

			pmodeRef, err := cmdutil.GetUserSetVar(cmd, pmodeFlagName, pmodeEnvKey, false)
			if err != nil {
				return err
			}

			leg, err := cmdutil.GetUserSetVar(cmd, legFlagName, legEnvKey, true)
			if err != nil {
				return err
			}

			attachmentDir, err := cmdutil.GetUserSetVar(cmd, attachmentDirFlagName, attachmentDirEnvKey, true)
			if err != nil {
				return err
			}

			attachments, err := cmd.Flags().GetStringArray(attachmentFlagName)
			if err != nil {
				return err
			}

			compress, err := cmd.Flags().GetBool(compressFlagName)
			if err != nil {
				return err
			}

			mimeOutput, err := cmd.Flags().GetBool(mimeFlagName)
			if err != nil {
				return err
			}

			parameters := &secureParameters{
				cfg:           cfg,
				logger:        logger,
				inPath:        inPath,
				outPath:       outPath,
				pmodeRef:      pmodeRef,
				leg:           leg,
				attachments:   attachments,
				attachmentDir: attachmentDir,
				compress:      compress,
				mimeOutput:    mimeOutput,
				stdout:        cmd.OutOrStdout(),
			}
			return secure(cmd.Context(), parameters)
		},
	}
}

func createFlags(secureCmd *cobra.Command) {
	secureCmd.Flags().StringP(inFlagName, inFlagShorthand, "", inFlagUsage)
	secureCmd.Flags().StringP(outFlagName, outFlagShorthand, "", outFlagUsage)
	secureCmd.Flags().StringP(pmodeFlagName, pmodeFlagShorthand, "", pmodeFlagUsage)
	secureCmd.Flags().String(legFlagName, "", legFlagUsage)
	secureCmd.Flags().StringArrayP(attachmentFlagName, attachmentFlagShorthand, nil, attachmentFlagUsage)
	secureCmd.Flags().String(attachmentDirFlagName, "", attachmentDirFlagUsage)
	secureCmd.Flags().Bool(compressFlagName, false, compressFlagUsage)
	secureCmd.Flags().Bool(mimeFlagName, false, mimeFlagUsage)
}

func secure(ctx context.Context, parameters *secureParameters) error {
	if ctx == nil {
		ctx = context.Background()
	}

	pmodes, pmodeID, err := loadPModes(parameters.cfg, parameters.pmodeRef)
	if err != nil {
		return err
	}

	envelope, attachments, err := readInput(parameters.inPath, parameters.attachments)
	if err != nil {
		return err
	}

	if parameters.compress {
		envelope, err = compressPayloads(envelope, attachments)
		if err != nil {
			return err
		}
	}

	provider, err := keystore.NewProvider(ctx, &parameters.cfg.Keystore)
	if err != nil {
		return fmt.Errorf("opening keystore: %w", err)
	}
	defer provider.Close()

	policy, err := parameters.cfg.Security.Policy()
	if err != nil {
		return err
	}

	engine := security.NewEngine(provider, security.WithLogger(parameters.logger))
	orchestrator := wssec.NewOrchestrator(engine,
		wssec.WithLogger(parameters.logger),
		wssec.WithFailurePolicy(policy))
	handler := msh.NewSecurityHandler(orchestrator,
		msh.WithResolver(msh.NewPModeResolver(pmodes)),
		msh.WithHandlerLogger(parameters.logger))

	msg := &msh.OutboundMessage{
		MessageID:          filepath.Base(parameters.inPath),
		PModeID:            pmodeID,
		Leg:                parameters.leg,
		Envelope:           envelope,
		Attachments:        attachments,
		AddSecurityHeaders: true,
	}

	result, err := handler.Process(ctx, msg)
	if err != nil {
		return err
	}
	if result == nil {
		parameters.logger.Warn("P-Mode has no security configuration, envelope left unchanged", "pmode", pmodeID)
	}

	if parameters.mimeOutput {
		return writeOutput(parameters, func(w io.Writer) error {
			return as4mime.NewPackage(msg.SOAPVersion, msg.Envelope, msg.Attachments).WriteEntity(w)
		})
	}
	if err := writeOutput(parameters, func(w io.Writer) error {
		_, err := w.Write(msg.Envelope)
		return err
	}); err != nil {
		return err
	}
	return writeAttachments(parameters.attachmentDir, msg.Attachments)
}

// readInput reads the envelope from path, unpacking it when the file is a
// MIME entity. Attachments named on the command line are appended.
func readInput(path string, attachmentPaths []string) ([]byte, []*message.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading envelope: %w", err)
	}

	extra, err := readAttachments(attachmentPaths)
	if err != nil {
		return nil, nil, err
	}

	if !as4mime.IsEntity(data) {
		return data, extra, nil
	}
	pkg, err := as4mime.ReadEntity(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("reading MIME entity: %w", err)
	}
	return pkg.Envelope, append(pkg.Attachments, extra...), nil
}

func compressPayloads(envelope []byte, attachments []*message.Attachment) ([]byte, error) {
	doc, _, err := message.ParseEnvelope(envelope)
	if err != nil {
		return nil, err
	}
	if _, err := compression.NewCompressor().CompressPayloads(doc, attachments); err != nil {
		return nil, fmt.Errorf("compressing payloads: %w", err)
	}
	return message.SerializeEnvelope(doc)
}

// loadPModes returns a manager holding the configured P-Mode directory and,
// when ref names a file, that P-Mode. The returned id selects the P-Mode.
func loadPModes(cfg *config.Config, ref string) (*pmode.Manager, string, error) {
	pmodes := pmode.NewManager()
	if cfg.Security.PModeDir != "" {
		if err := pmodes.LoadDir(cfg.Security.PModeDir); err != nil {
			return nil, "", err
		}
	}

	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		pm, err := pmode.Load(ref)
		if err != nil {
			return nil, "", err
		}
		pmodes.Add(pm)
		return pmodes, pm.ID, nil
	}

	if pmodes.Get(ref) == nil {
		return nil, "", fmt.Errorf("%w: %s", msh.ErrPModeNotFound, ref)
	}
	return pmodes, ref, nil
}

func readAttachments(paths []string) ([]*message.Attachment, error) {
	attachments := make([]*message.Attachment, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading attachment: %w", err)
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		attachments = append(attachments, &message.Attachment{
			ContentID:   filepath.Base(path),
			ContentType: contentType,
			Data:        data,
		})
	}
	return attachments, nil
}

func writeOutput(parameters *secureParameters, write func(io.Writer) error) error {
	if parameters.outPath == "" {
		return write(parameters.stdout)
	}
	f, err := os.Create(parameters.outPath)
	if err != nil {
		return fmt.Errorf("writing envelope: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing envelope: %w", err)
	}
	return f.Close()
}

func writeAttachments(dir string, attachments []*message.Attachment) error {
	if dir == "" || len(attachments) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating attachment directory: %w", err)
	}
	for _, att := range attachments {
		if err := os.WriteFile(filepath.Join(dir, filepath.Base(att.ContentID)), att.Data, 0o644); err != nil {
			return fmt.Errorf("writing attachment %s: %w", att.ContentID, err)
		}
	}
	return nil
}
