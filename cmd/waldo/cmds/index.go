package cmds

import (
	"fmt"

	"github.com/go-go-golems/waldo/pkg/config"
	"github.com/go-go-golems/waldo/pkg/embeddings"
	"github.com/go-go-golems/waldo/pkg/rag"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build and inspect the knowledge base index",
	}
	cmd.AddCommand(newIndexBuildCommand(), newIndexQueryCommand())
	return cmd
}

func newIndexBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Embed a dataset into the persisted chromem index",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			if s.Retrieval.Backend != config.BackendChromem {
				return errors.Errorf("index build only supports the %s backend", config.BackendChromem)
			}
			if s.Retrieval.Store.PersistPath == "" {
				return errors.New("retrieval.store.persist-path must be set to build an index")
			}

			dataset, _ := cmd.Flags().GetString("dataset")
			limit, _ := cmd.Flags().GetInt("limit")
			batchSize, _ := cmd.Flags().GetInt("batch-size")
			concurrency, _ := cmd.Flags().GetInt("concurrency")

			records, err := rag.LoadDataset(dataset, limit)
			if err != nil {
				return err
			}

			provider, err := embeddings.NewProvider(s.Embeddings)
			if err != nil {
				return errors.Wrap(err, "create embeddings provider")
			}
			store, err := rag.NewChromemStore(s.Retrieval.Store, embeddings.AsEmbeddingFunc(provider))
			if err != nil {
				return err
			}

			indexer := rag.NewIndexer(store, provider,
				rag.WithBatchSize(batchSize),
				rag.WithConcurrency(concurrency),
			)
			n, err := indexer.Build(cmd.Context(), records)
			if err != nil {
				return err
			}
			log.Info().
				Int("indexed", n).
				Int("total", store.Count()).
				Str("path", s.Retrieval.Store.PersistPath).
				Msg("Index built")
			return nil
		},
	}
	cmd.Flags().String("dataset", "", "Path to a .jsonl or .yaml dataset")
	cmd.Flags().Int("limit", 0, "Maximum number of records to index (0 for all)")
	cmd.Flags().Int("batch-size", 64, "Number of texts per embedding request")
	cmd.Flags().Int("concurrency", 4, "Number of parallel writers")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}

func newIndexQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Print the context block the agent would see for a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			k, _ := cmd.Flags().GetInt("k")
			if k <= 0 {
				k = s.Retrieval.TopK
			}

			provider, err := embeddings.NewProvider(s.Embeddings)
			if err != nil {
				return errors.Wrap(err, "create embeddings provider")
			}
			retriever, err := buildRetriever(s, provider)
			if err != nil {
				return err
			}
			docs, err := retriever.Search(cmd.Context(), args[0], k)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "no documents found")
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), rag.FormatContext(docs, s.Retrieval.MaxCharsPerDoc))
			return err
		},
	}
	cmd.Flags().Int("k", 0, "Number of documents to retrieve (default retrieval.top-k)")
	return cmd
}
