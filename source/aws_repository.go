package source

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Thysk/rucio/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AwsS3Repository is a struct that implements the Repository interface for
// configuration data stored in a rucio.cfg file within an S3 bucket.
type AwsS3Repository struct {
	sync.RWMutex                   // RWMutex to synchronize access to data during refresh
	Name            string         // Name of the configuration source
	BucketName      string         // Name of the S3 bucket
	ObjectName      string         // Key of the rucio.cfg file within the S3 bucket
	Region          string         // AWS region, the default chain's region when empty
	AccessKeyID     string         // Static credentials, the default chain is used when empty
	SecretAccessKey string         // Secret for AccessKeyID
	Client          *s3.Client     // S3 client instance
	cfg             *config.Config // Parsed snapshot of the configuration
	rawData         []byte         // Raw bytes of the configuration file
	clientOnce      sync.Once      // Ensures client is initialized only once
	clientInitErr   error          // Stores error from client initialization
}

// Refresh reads the rucio.cfg file from the S3 bucket and parses it into the
// snapshot.
func (a *AwsS3Repository) Refresh() error {
	ctx := context.Background()

	// Thread-safe client initialization using sync.Once (only if client not pre-configured)
	if a.Client == nil {
		a.clientOnce.Do(func() {
			var options []func(*awsconfig.LoadOptions) error
			if a.Region != "" {
				options = append(options, awsconfig.WithRegion(a.Region))
			}
			if a.AccessKeyID != "" {
				options = append(options, awsconfig.WithCredentialsProvider(
					credentials.NewStaticCredentialsProvider(a.AccessKeyID, a.SecretAccessKey, "")))
			}
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
			if err != nil {
				a.clientInitErr = fmt.Errorf("failed to load AWS config: %w", err)
				return
			}
			a.Client = s3.NewFromConfig(awsCfg)
		})
		if a.clientInitErr != nil {
			return a.clientInitErr
		}
	}

	// Network I/O outside lock for better performance
	result, err := a.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.BucketName),
		Key:    aws.String(a.ObjectName),
	})
	if err != nil {
		return err
	}
	defer result.Body.Close()

	// Read the file content from the reader.
	fileContent, err := io.ReadAll(result.Body)
	if err != nil {
		return err
	}

	// Parse to a temp variable outside the lock to prevent data corruption on error
	tempCfg, err := config.Parse(fileContent)
	if err != nil {
		return err
	}

	// Only lock for atomic data swap
	a.Lock()
	a.cfg = tempCfg
	a.rawData = fileContent
	a.Unlock()

	return nil
}

// GetName returns the name of the configuration source.
func (a *AwsS3Repository) GetName() string {
	return a.Name
}

// GetData returns the effective value of section.key from the snapshot.
func (a *AwsS3Repository) GetData(section, key string) (string, bool) {
	a.RLock()
	defer a.RUnlock()
	return lookup(a.cfg, section, key)
}

// GetRawData returns the raw bytes of the configuration file.
func (a *AwsS3Repository) GetRawData() []byte {
	a.RLock()
	defer a.RUnlock()
	return a.rawData
}

// Config returns the parsed snapshot, nil before the first successful refresh.
func (a *AwsS3Repository) Config() *config.Config {
	a.RLock()
	defer a.RUnlock()
	return a.cfg
}
